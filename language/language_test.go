package language

import (
	"strings"
	"testing"
)

func TestFromExtension(t *testing.T) {
	tests := []struct {
		ext  string
		want Tag
	}{
		{"js", JavaScript},
		{".mjs", JavaScript},
		{"cjs", JavaScript},
		{"ts", TypeScript},
		{"jsx", JSX},
		{"tsx", TSX},
		{"py", Python},
		{"PYW", Python},
		{"htm", HTML},
		{"html", HTML},
		{"scss", CSS},
		{"sass", CSS},
		{"markdown", Markdown},
		{"md", Markdown},
		{"hpp", CPP},
		{"c", CPP},
		{"cxx", CPP},
		{"rs", Rust},
		{"lua", Lua},
		{"luau", Luau},
		{"txt", Default},
		{"", Default},
		{"cob", Default},
	}

	for _, tt := range tests {
		if got := FromExtension(tt.ext); got != tt.want {
			t.Errorf("FromExtension(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestDetect(t *testing.T) {
	if got := Detect("scripts/main.lua"); got != Lua {
		t.Errorf("expected lua, got %q", got)
	}
	if got := Detect("README"); got != Default {
		t.Errorf("expected default for no extension, got %q", got)
	}
	if got := Detect("archive.tar.py"); got != Python {
		t.Errorf("expected python from last extension, got %q", got)
	}
}

func TestParseAliases(t *testing.T) {
	for in, want := range map[string]Tag{"py": Python, "c++": CPP, "Lua": Lua, "luau": Luau, " js ": JavaScript} {
		got, ok := Parse(in)
		if !ok || got != want {
			t.Errorf("Parse(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := Parse("cobol"); ok {
		t.Error("cobol should not parse")
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("cobol") != Default {
		t.Error("unknown tag should normalize to default")
	}
	if Normalize(Rust) != Rust {
		t.Error("known tag should be kept")
	}
}

func TestEveryExtensionMapsToSupportedTag(t *testing.T) {
	for ext, tag := range extensions {
		if !Valid(tag) {
			t.Errorf("extension %q maps to unsupported tag %q", ext, tag)
		}
	}
	for alias, tag := range aliases {
		if !Valid(tag) {
			t.Errorf("alias %q maps to unsupported tag %q", alias, tag)
		}
	}
}

func TestTemplate(t *testing.T) {
	if got := Template(Python); got != "# New file\n" {
		t.Errorf("python template = %q", got)
	}
	if got := Template(Lua); got != "-- New file\n" {
		t.Errorf("lua template = %q", got)
	}
	if !strings.Contains(Template(HTML), "<head>") {
		t.Error("html template should contain a head element")
	}
	if got := Template("cobol"); got != Template(Default) {
		t.Errorf("unknown tag should use the default template, got %q", got)
	}
}

func TestAllSorted(t *testing.T) {
	all := All()
	if len(all) != len(known) {
		t.Fatalf("expected %d tags, got %d", len(known), len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1] >= all[i] {
			t.Fatalf("tags not sorted: %v", all)
		}
	}
}
