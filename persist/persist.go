// Package persist writes the session and the editor settings through to a
// local key-value store and restores them at startup.
//
// Loading never fails: a missing, unreadable or corrupt record is discarded
// and replaced by the empty session or the default settings. Write failures
// are logged and the in-memory state stays authoritative.
package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/obfuscate"
	"github.com/caffeineduck/codeflow/session"
	"github.com/caffeineduck/codeflow/settings"
)

// Storage keys.
const (
	KeyFiles    = "codeflow-files"
	KeyActive   = "codeflow-active-file"
	KeySettings = "codeflow-settings"
)

var ErrClosed = errors.New("persist: adapter closed")

// Option configures an Adapter.
type Option func(*Adapter)

// WithObfuscation passes every stored value through the obfuscate transform.
func WithObfuscation(enabled bool) Option {
	return func(a *Adapter) {
		a.obfuscate = enabled
	}
}

// WithLogger sets the logger used for discarded records and failed writes.
func WithLogger(log pslog.Logger) Option {
	return func(a *Adapter) {
		if log != nil {
			a.log = log
		}
	}
}

// Adapter serializes the session and settings into a Backend.
type Adapter struct {
	backend   Backend
	obfuscate bool
	log       pslog.Logger

	mu              sync.Mutex
	pendingSession  *session.Snapshot
	pendingSettings *settings.Settings
	closed          bool

	wake    chan struct{}
	flushCh chan chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// New returns an Adapter over backend and starts its background writer.
// Close must be called to stop it.
func New(backend Backend, opts ...Option) *Adapter {
	a := &Adapter{
		backend: backend,
		log:     pslog.Ctx(context.Background()),
		wake:    make(chan struct{}, 1),
		flushCh: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.loop()
	return a
}

// LoadSession restores the persisted session, or an empty one.
func (a *Adapter) LoadSession(ctx context.Context) session.Snapshot {
	raw, ok := a.read(ctx, KeyFiles)
	if !ok {
		return session.Snapshot{}
	}

	var files []session.File
	if err := yaml.Unmarshal([]byte(raw), &files); err != nil {
		a.discard(ctx, KeyFiles, err)
		return session.Snapshot{}
	}

	active, _ := a.read(ctx, KeyActive)
	return session.Repair(session.Snapshot{Files: files, ActiveID: strings.TrimSpace(active)})
}

// LoadSettings restores the persisted settings, or the defaults. Fields
// missing from the stored record keep their default values.
func (a *Adapter) LoadSettings(ctx context.Context) settings.Settings {
	raw, ok := a.read(ctx, KeySettings)
	if !ok {
		return settings.Default()
	}

	s := settings.Default()
	if err := yaml.Unmarshal([]byte(raw), &s); err != nil {
		a.discard(ctx, KeySettings, err)
		return settings.Default()
	}
	return s.Normalize()
}

// SaveSession writes the file list and the active id.
func (a *Adapter) SaveSession(ctx context.Context, snap session.Snapshot) error {
	files := snap.Files
	if files == nil {
		files = []session.File{}
	}
	data, err := yaml.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	if err := a.write(ctx, KeyFiles, string(data)); err != nil {
		return err
	}
	return a.write(ctx, KeyActive, snap.ActiveID)
}

// SaveSettings writes the editor settings.
func (a *Adapter) SaveSettings(ctx context.Context, s settings.Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return a.write(ctx, KeySettings, string(data))
}

// Attach writes every change of the given stores through to the backend. Either
// store may be nil. The returned function stops observing.
func (a *Adapter) Attach(sessions *session.Store, prefs *settings.Store) (detach func()) {
	var cancels []func()
	if sessions != nil {
		cancels = append(cancels, sessions.Subscribe(func(snap session.Snapshot) {
			a.mu.Lock()
			a.pendingSession = &snap
			a.mu.Unlock()
			a.signal()
		}))
	}
	if prefs != nil {
		cancels = append(cancels, prefs.Subscribe(func(s settings.Settings) {
			a.mu.Lock()
			a.pendingSettings = &s
			a.mu.Unlock()
			a.signal()
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Flush blocks until every change observed before the call has been written.
func (a *Adapter) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case a.flushCh <- ack:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes pending changes, stops the background writer and closes the
// backend.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.stop)
	<-a.done
	return a.backend.Close()
}

func (a *Adapter) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *Adapter) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.wake:
			a.drain()
		case ack := <-a.flushCh:
			a.drain()
			close(ack)
		case <-a.stop:
			a.drain()
			return
		}
	}
}

// drain writes the latest pending value of each record. Intermediate states
// that were replaced before the writer got to them are never written.
func (a *Adapter) drain() {
	a.mu.Lock()
	snap, prefs := a.pendingSession, a.pendingSettings
	a.pendingSession, a.pendingSettings = nil, nil
	a.mu.Unlock()

	ctx := context.Background()
	if snap != nil {
		if err := a.SaveSession(ctx, *snap); err != nil {
			a.log.Warn("persist session failed", "files", len(snap.Files), "err", err)
		}
	}
	if prefs != nil {
		if err := a.SaveSettings(ctx, *prefs); err != nil {
			a.log.Warn("persist settings failed", "err", err)
		}
	}
}

func (a *Adapter) write(ctx context.Context, key, value string) error {
	if a.obfuscate {
		value = obfuscate.Encode(value)
	}
	if err := a.backend.Set(ctx, key, value); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// read returns the decoded record under key. Unreadable records are logged and
// reported as absent; records that fail to de-obfuscate are discarded.
func (a *Adapter) read(ctx context.Context, key string) (string, bool) {
	raw, ok, err := a.backend.Get(ctx, key)
	if err != nil {
		a.log.Warn("persist read failed", "key", key, "err", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	if !a.obfuscate {
		return raw, true
	}
	if !obfuscate.IsEncoded(raw) {
		// Written before obfuscation was turned on.
		return raw, true
	}
	val, err := obfuscate.Decode(raw)
	if err != nil {
		a.discard(ctx, key, err)
		return "", false
	}
	return val, true
}

func (a *Adapter) discard(ctx context.Context, key string, cause error) {
	a.log.Warn("persist record discarded", "key", key, "err", cause)
	if err := a.backend.Delete(ctx, key); err != nil {
		a.log.Warn("persist discard failed", "key", key, "err", err)
	}
}
