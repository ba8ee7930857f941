// Package fileio moves file content between the session and the local disk.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/caffeineduck/codeflow/language"
	"github.com/caffeineduck/codeflow/session"
)

// MaxImportSize bounds the size of an imported file.
const MaxImportSize = 8 << 20

var (
	ErrNotText  = errors.New("file is not valid UTF-8 text")
	ErrTooLarge = errors.New("file too large")
)

// Document is a file read from disk, ready to be opened in the session.
type Document struct {
	Path     string
	Name     string
	Content  string
	Language language.Tag
}

// Import reads the file at path. The language is derived from the file
// extension.
func Import(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("import %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Document{}, fmt.Errorf("import %s: %w", path, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("import %s: is a directory", path)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxImportSize+1))
	if err != nil {
		return Document{}, fmt.Errorf("import %s: %w", path, err)
	}
	if len(data) > MaxImportSize {
		return Document{}, fmt.Errorf("import %s: %w", path, ErrTooLarge)
	}
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("import %s: %w", path, ErrNotText)
	}

	name := filepath.Base(path)
	return Document{
		Path:     path,
		Name:     name,
		Content:  string(data),
		Language: language.Detect(name),
	}, nil
}

// Open imports the file at path into store and makes it active.
func Open(store *session.Store, path string) (session.File, error) {
	doc, err := Import(path)
	if err != nil {
		return session.File{}, err
	}
	return store.Open(doc.Name, doc.Content, doc.Language), nil
}

// Export writes the content of f to w verbatim.
func Export(w io.Writer, f session.File) error {
	if _, err := io.WriteString(w, f.Content); err != nil {
		return fmt.Errorf("export %s: %w", f.Name, err)
	}
	return nil
}

// ExportFile writes f into dir under its own name and returns the path.
func ExportFile(dir string, f session.File) (string, error) {
	name := filepath.Base(f.Name)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "", fmt.Errorf("export: invalid file name %q", f.Name)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
		return "", fmt.Errorf("export %s: %w", f.Name, err)
	}
	return path, nil
}
