package preview

import (
	"strings"

	"golang.org/x/net/html"
)

const baseTag = `<base href="/" target="_blank">`

// InjectBase inserts the preview base element right after the first <head>
// tag. Documents without a literal <head> tag are returned unchanged.
func InjectBase(doc string) string {
	return strings.Replace(doc, "<head>", "<head>"+baseTag, 1)
}

// Stylesheets returns the href of every <link rel="stylesheet"> in doc, in
// document order.
func Stylesheets(doc string) []string {
	var hrefs []string
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF at the end of the document; anything else is truncated input.
			return hrefs
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "link" {
				continue
			}
			var rel, href string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "rel":
					rel = attr.Val
				case "href":
					href = attr.Val
				}
			}
			if href != "" && isStylesheet(rel) {
				hrefs = append(hrefs, href)
			}
		}
	}
}

func isStylesheet(rel string) bool {
	for _, field := range strings.Fields(rel) {
		if strings.EqualFold(field, "stylesheet") {
			return true
		}
	}
	return false
}
