// Package language owns the canonical language tag table: the supported set,
// the extension lookup used when files are created, opened or imported, and
// the starter template for new files.
package language

import (
	"path/filepath"
	"sort"
	"strings"
)

// Tag identifies a language. It drives both syntax highlighting in the editor
// and execution eligibility in the executor.
type Tag string

const (
	JavaScript Tag = "javascript"
	TypeScript Tag = "typescript"
	JSX        Tag = "jsx"
	TSX        Tag = "tsx"
	Python     Tag = "python"
	HTML       Tag = "html"
	CSS        Tag = "css"
	JSON       Tag = "json"
	Markdown   Tag = "markdown"
	SQL        Tag = "sql"
	XML        Tag = "xml"
	PHP        Tag = "php"
	Java       Tag = "java"
	CPP        Tag = "cpp"
	Rust       Tag = "rust"
	Lua        Tag = "lua"
	Luau       Tag = "luau"
)

// Default is used for unknown extensions and unknown tags.
const Default = JavaScript

type info struct {
	label    string
	comment  string
	template string
}

var known = map[Tag]info{
	JavaScript: {label: "JavaScript", comment: "//"},
	TypeScript: {label: "TypeScript", comment: "//"},
	JSX:        {label: "React JSX", comment: "//"},
	TSX:        {label: "React TSX", comment: "//"},
	Python:     {label: "Python", comment: "#"},
	HTML:       {label: "HTML", template: htmlTemplate},
	CSS:        {label: "CSS", template: "/* New file */\n"},
	JSON:       {label: "JSON", template: "{}\n"},
	Markdown:   {label: "Markdown", template: "# New file\n"},
	SQL:        {label: "SQL", comment: "--"},
	XML:        {label: "XML", template: "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"},
	PHP:        {label: "PHP", template: "<?php\n// New file\n"},
	Java:       {label: "Java", comment: "//"},
	CPP:        {label: "C++", comment: "//"},
	Rust:       {label: "Rust", comment: "//"},
	Lua:        {label: "Lua", comment: "--"},
	Luau:       {label: "Luau", comment: "--"},
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>New file</title>
</head>
<body>
</body>
</html>
`

var extensions = map[string]Tag{
	"js":       JavaScript,
	"mjs":      JavaScript,
	"cjs":      JavaScript,
	"ts":       TypeScript,
	"jsx":      JSX,
	"tsx":      TSX,
	"py":       Python,
	"pyw":      Python,
	"html":     HTML,
	"htm":      HTML,
	"css":      CSS,
	"scss":     CSS,
	"sass":     CSS,
	"json":     JSON,
	"md":       Markdown,
	"markdown": Markdown,
	"sql":      SQL,
	"xml":      XML,
	"php":      PHP,
	"java":     Java,
	"cpp":      CPP,
	"cc":       CPP,
	"cxx":      CPP,
	"c":        CPP,
	"h":        CPP,
	"hpp":      CPP,
	"rs":       Rust,
	"lua":      Lua,
	"luau":     Luau,
}

var aliases = map[string]Tag{
	"js":  JavaScript,
	"ts":  TypeScript,
	"py":  Python,
	"md":  Markdown,
	"rs":  Rust,
	"c":   CPP,
	"c++": CPP,
}

// FromExtension maps a file extension (with or without the leading dot) to a
// tag. Unmapped extensions yield Default.
func FromExtension(ext string) Tag {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if tag, ok := extensions[ext]; ok {
		return tag
	}
	return Default
}

// Detect returns the tag for a file name based on its extension.
func Detect(name string) Tag {
	return FromExtension(filepath.Ext(name))
}

// Parse resolves a canonical tag or one of the short aliases (js, py, c++, ...).
func Parse(s string) (Tag, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := known[Tag(s)]; ok {
		return Tag(s), true
	}
	tag, ok := aliases[s]
	return tag, ok
}

// Valid reports whether tag is a member of the supported set.
func Valid(tag Tag) bool {
	_, ok := known[tag]
	return ok
}

// Normalize returns tag if it is supported and Default otherwise.
func Normalize(tag Tag) Tag {
	if Valid(tag) {
		return tag
	}
	return Default
}

// Label returns the human readable name of tag.
func Label(tag Tag) string {
	if i, ok := known[tag]; ok {
		return i.label
	}
	return string(tag)
}

// Template returns the starter body for a new file of the given language.
func Template(tag Tag) string {
	i, ok := known[Normalize(tag)]
	if !ok {
		return ""
	}
	if i.template != "" {
		return i.template
	}
	if i.comment != "" {
		return i.comment + " New file\n"
	}
	return ""
}

// All returns the supported tags in lexical order.
func All() []Tag {
	tags := make([]Tag, 0, len(known))
	for tag := range known {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

func (t Tag) String() string {
	return string(t)
}
