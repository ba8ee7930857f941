// Package session tracks the open files of an editing session and which one is
// active.
//
// Every mutation replaces the whole state: the store reads the current
// snapshot, computes the next one and swaps it in under a single lock, so an
// observer never sees a half-applied change. Observers registered with
// [Store.Subscribe] receive each new snapshot in mutation order.
package session

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/caffeineduck/codeflow/language"
)

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// File is one open document.
type File struct {
	ID       string       `yaml:"id"`
	Name     string       `yaml:"name"`
	Content  string       `yaml:"content"`
	Language language.Tag `yaml:"language"`
}

// Snapshot is an immutable view of the session. Files are in tab order.
type Snapshot struct {
	Files    []File
	ActiveID string
}

// Active returns the active file, if any.
func (s Snapshot) Active() (File, bool) {
	return s.Get(s.ActiveID)
}

// Get returns the file with the given id.
func (s Snapshot) Get(id string) (File, bool) {
	if id == "" {
		return File{}, false
	}
	for _, f := range s.Files {
		if f.ID == id {
			return f, true
		}
	}
	return File{}, false
}

func (s Snapshot) index(id string) int {
	return slices.IndexFunc(s.Files, func(f File) bool { return f.ID == id })
}

// Store owns the session state.
type Store struct {
	mu    sync.Mutex
	state Snapshot

	// notifyMu keeps observer calls in mutation order without holding mu.
	notifyMu  sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
	obsMu     sync.RWMutex

	newID func() string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		observers: make(map[int]func(Snapshot)),
		newID:     uuid.NewString,
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns the active file, if any.
func (s *Store) Active() (File, bool) {
	return s.Snapshot().Active()
}

// Get returns the file with the given id.
func (s *Store) Get(id string) (File, bool) {
	return s.Snapshot().Get(id)
}

// Len returns the number of open files.
func (s *Store) Len() int {
	return len(s.Snapshot().Files)
}

// Create opens a new file seeded with the language template and makes it
// active.
func (s *Store) Create(name string, tag language.Tag) File {
	tag = language.Normalize(tag)
	return s.Open(name, language.Template(tag), tag)
}

// Open adds a file with externally supplied content and makes it active.
func (s *Store) Open(name, content string, tag language.Tag) File {
	f := File{
		ID:       s.newID(),
		Name:     name,
		Content:  content,
		Language: language.Normalize(tag),
	}
	s.apply(func(cur Snapshot) (Snapshot, error) {
		next := Snapshot{Files: append(slices.Clip(cur.Files), f), ActiveID: f.ID}
		return next, nil
	})
	return f
}

// Close removes the file with the given id. When the active file is closed the
// first remaining file becomes active. Unknown ids are ignored.
func (s *Store) Close(id string) {
	s.apply(func(cur Snapshot) (Snapshot, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, errNoChange
		}
		next := Snapshot{Files: slices.Delete(slices.Clone(cur.Files), idx, idx+1), ActiveID: cur.ActiveID}
		if cur.ActiveID == id {
			next.ActiveID = ""
			if len(next.Files) > 0 {
				next.ActiveID = next.Files[0].ID
			}
		}
		return next, nil
	})
}

// Select makes the file with the given id active.
func (s *Store) Select(id string) error {
	return s.apply(func(cur Snapshot) (Snapshot, error) {
		if cur.index(id) < 0 {
			return cur, ErrFileNotFound
		}
		if cur.ActiveID == id {
			return cur, errNoChange
		}
		return Snapshot{Files: cur.Files, ActiveID: id}, nil
	})
}

// UpdateContent replaces the content of a file. Any text is accepted.
func (s *Store) UpdateContent(id, content string) error {
	return s.modify(id, func(f *File) { f.Content = content })
}

// Rename changes the display name of a file. The language is left alone.
func (s *Store) Rename(id, name string) error {
	return s.modify(id, func(f *File) { f.Name = name })
}

// SetLanguage changes the language of a file independently of its name.
func (s *Store) SetLanguage(id string, tag language.Tag) error {
	if !language.Valid(tag) {
		return ErrUnsupportedLanguage
	}
	return s.modify(id, func(f *File) { f.Language = tag })
}

// Restore replaces the state with a previously persisted snapshot. The
// snapshot is repaired first: files with empty or duplicate ids are dropped,
// languages are normalized and a dangling active id moves to the first file.
func (s *Store) Restore(snap Snapshot) {
	repaired := Repair(snap)
	s.apply(func(Snapshot) (Snapshot, error) { return repaired, nil })
}

// Repair returns a copy of snap that satisfies the session invariants.
func Repair(snap Snapshot) Snapshot {
	seen := make(map[string]bool, len(snap.Files))
	files := make([]File, 0, len(snap.Files))
	for _, f := range snap.Files {
		if f.ID == "" || seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		f.Language = language.Normalize(f.Language)
		files = append(files, f)
	}
	out := Snapshot{Files: files, ActiveID: snap.ActiveID}
	if !seen[out.ActiveID] {
		out.ActiveID = ""
		if len(files) > 0 {
			out.ActiveID = files[0].ID
		}
	}
	return out
}

// Subscribe registers fn to be called with every new snapshot. Observers run
// synchronously after the mutation and must not call back into the store.
// The returned function removes the observer.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

var errNoChange = errors.New("no change")

func (s *Store) modify(id string, fn func(*File)) error {
	return s.apply(func(cur Snapshot) (Snapshot, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, ErrFileNotFound
		}
		files := slices.Clone(cur.Files)
		fn(&files[idx])
		return Snapshot{Files: files, ActiveID: cur.ActiveID}, nil
	})
}

// apply runs one read-compute-replace step and notifies observers. A step
// returning errNoChange leaves the state untouched and is not an error.
func (s *Store) apply(step func(Snapshot) (Snapshot, error)) error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next, err := step(s.state)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	s.state = next
	s.mu.Unlock()

	s.obsMu.RLock()
	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.obsMu.RUnlock()

	for _, fn := range observers {
		fn(next)
	}
	return nil
}
