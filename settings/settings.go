// Package settings holds the editor preferences. They are orthogonal to the
// session and persisted under their own key.
package settings

import (
	"slices"
	"sync"
)

// CustomFont is a user supplied font face.
type CustomFont struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Settings are the editor preferences.
type Settings struct {
	Theme               string       `yaml:"theme"`
	FontSize            int          `yaml:"font_size"`
	FontFamily          string       `yaml:"font_family"`
	CustomFonts         []CustomFont `yaml:"custom_fonts,omitempty"`
	BackgroundImage     string       `yaml:"background_image,omitempty"`
	LineHeight          float64      `yaml:"line_height"`
	TabSize             int          `yaml:"tab_size"`
	SmoothCursor        bool         `yaml:"smooth_cursor"`
	LineNumbers         bool         `yaml:"line_numbers"`
	LineWrapping        bool         `yaml:"line_wrapping"`
	HighlightActiveLine bool         `yaml:"highlight_active_line"`
	BracketMatching     bool         `yaml:"bracket_matching"`
	AutoCloseBrackets   bool         `yaml:"auto_close_brackets"`
	Autocompletion      bool         `yaml:"autocompletion"`
	FoldGutter          bool         `yaml:"fold_gutter"`
	ShowInvisibles      bool         `yaml:"show_invisibles"`
	HighlightWhitespace bool         `yaml:"highlight_whitespace"`
}

const (
	MinFontSize   = 8
	MaxFontSize   = 48
	MinTabSize    = 1
	MaxTabSize    = 8
	MinLineHeight = 1.0
	MaxLineHeight = 3.0
)

var themes = []string{"oneDark", "vscode", "githubLight", "githubDark", "dracula"}

// Themes returns the known theme names.
func Themes() []string {
	return slices.Clone(themes)
}

// Default returns the preferences used when nothing has been stored.
func Default() Settings {
	return Settings{
		Theme:               "oneDark",
		FontSize:            14,
		FontFamily:          "Fira Code",
		LineHeight:          1.6,
		TabSize:             2,
		SmoothCursor:        true,
		LineNumbers:         true,
		LineWrapping:        true,
		HighlightActiveLine: true,
		BracketMatching:     true,
		AutoCloseBrackets:   true,
		Autocompletion:      true,
		FoldGutter:          true,
	}
}

// Normalize clamps numeric preferences into range and resets unknown themes
// and empty font families to their defaults.
func (s Settings) Normalize() Settings {
	def := Default()
	if !slices.Contains(themes, s.Theme) {
		s.Theme = def.Theme
	}
	if s.FontFamily == "" {
		s.FontFamily = def.FontFamily
	}
	s.FontSize = clamp(s.FontSize, MinFontSize, MaxFontSize)
	s.TabSize = clamp(s.TabSize, MinTabSize, MaxTabSize)
	s.LineHeight = clamp(s.LineHeight, MinLineHeight, MaxLineHeight)
	s.CustomFonts = slices.Clone(s.CustomFonts)
	return s
}

func clamp[T int | float64](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// Store holds the current settings and notifies observers on change.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	cur       Settings
	observers map[int]func(Settings)
	next      int
}

// NewStore returns a store holding s.
func NewStore(s Settings) *Store {
	return &Store{cur: s.Normalize(), observers: make(map[int]func(Settings))}
}

// Get returns the current settings.
func (st *Store) Get() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cur.Normalize()
}

// Set replaces the settings.
func (st *Store) Set(s Settings) {
	st.Update(func(cur *Settings) { *cur = s })
}

// Update applies fn to a copy of the current settings and stores the
// normalized result.
func (st *Store) Update(fn func(*Settings)) Settings {
	st.notifyMu.Lock()
	defer st.notifyMu.Unlock()

	st.mu.Lock()
	next := st.cur.Normalize()
	fn(&next)
	next = next.Normalize()
	st.cur = next
	observers := make([]func(Settings), 0, len(st.observers))
	for _, fn := range st.observers {
		observers = append(observers, fn)
	}
	st.mu.Unlock()

	for _, fn := range observers {
		fn(next)
	}
	return next
}

// Subscribe registers fn for every change. The returned function removes it.
func (st *Store) Subscribe(fn func(Settings)) (cancel func()) {
	st.mu.Lock()
	id := st.next
	st.next++
	st.observers[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.observers, id)
		st.mu.Unlock()
	}
}
