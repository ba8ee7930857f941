package fileio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type change struct {
	id  string
	doc Document
}

func newTestWatcher(t *testing.T) (*Watcher, <-chan change) {
	t.Helper()
	ch := make(chan change, 16)
	w, err := NewWatcher(func(id string, doc Document) {
		ch <- change{id, doc}
	}, WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	return w, ch
}

func expectChange(t *testing.T, ch <-chan change) change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return change{}
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	w, ch := newTestWatcher(t)
	path := filepath.Join(t.TempDir(), "main.lua")
	os.WriteFile(path, []byte("print(1)"), 0o644)

	if err := w.Watch("file-1", path); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(path, []byte("print(2)"), 0o644)

	c := expectChange(t, ch)
	if c.id != "file-1" || c.doc.Content != "print(2)" {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestWatcherDebounces(t *testing.T) {
	ch := make(chan change, 16)
	w, err := NewWatcher(func(id string, doc Document) {
		ch <- change{id, doc}
	}, WithDebounce(300*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	path := filepath.Join(t.TempDir(), "main.py")
	os.WriteFile(path, nil, 0o644)
	w.Watch("f", path)

	for i := range 5 {
		os.WriteFile(path, []byte{byte('a' + i)}, 0o644)
		time.Sleep(10 * time.Millisecond)
	}

	c := expectChange(t, ch)
	if c.doc.Content != "e" {
		t.Errorf("expected the final content, got %q", c.doc.Content)
	}
	select {
	case extra := <-ch:
		t.Errorf("expected a single change, got another %+v", extra)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherIgnoresUnwatchedFiles(t *testing.T) {
	w, ch := newTestWatcher(t)
	dir := t.TempDir()
	watched := filepath.Join(dir, "a.js")
	os.WriteFile(watched, []byte("a"), 0o644)
	w.Watch("a", watched)

	os.WriteFile(filepath.Join(dir, "other.js"), []byte("x"), 0o644)
	select {
	case c := <-ch:
		t.Errorf("unexpected change %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherUnwatch(t *testing.T) {
	w, ch := newTestWatcher(t)
	path := filepath.Join(t.TempDir(), "a.js")
	os.WriteFile(path, []byte("a"), 0o644)
	w.Watch("a", path)
	if w.Paths() != 1 {
		t.Fatalf("expected one path, got %d", w.Paths())
	}

	w.Unwatch("a")
	if w.Paths() != 0 {
		t.Fatalf("expected no paths, got %d", w.Paths())
	}
	os.WriteFile(path, []byte("b"), 0o644)
	select {
	case c := <-ch:
		t.Errorf("unexpected change after unwatch %+v", c)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherClose(t *testing.T) {
	w, _ := newTestWatcher(t)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Error("second close should be a no-op")
	}
	if err := w.Watch("a", filepath.Join(t.TempDir(), "a.js")); err == nil {
		t.Error("expected error after close")
	}
}
