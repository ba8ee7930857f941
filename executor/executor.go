package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/language"
)

// NoOutput replaces the output of a successful run that printed nothing.
const NoOutput = "Code executed successfully (no output)"

// Runtime is an initialized interpreter. Every Run starts from a fresh global
// state and must be safe for concurrent use.
type Runtime interface {
	Run(ctx context.Context, code string, stdout, stderr io.Writer) error
	Close(ctx context.Context) error
}

// Loader initializes a Runtime. It may fetch assets and take a long time.
type Loader func(ctx context.Context) (Runtime, error)

// State is the lifecycle state of a language runtime.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result holds the output and metadata from code execution.
type Result struct {
	Output   string
	Duration time.Duration
	Error    error
}

// Failed reports whether the run produced an error.
func (r Result) Failed() bool {
	return r.Error != nil
}

// ErrorText returns the error message for display, or "".
func (r Result) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Error()
}

type slot struct {
	tag  language.Tag
	load Loader

	mu    sync.Mutex
	state State
	rt    Runtime
}

func (s *slot) ready() (Runtime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rt, s.state == StateReady
}

// Executor dispatches code to per-language runtimes, initializing each one
// lazily on first use.
type Executor struct {
	slots       map[language.Tag]*slot
	group       singleflight.Group
	timeout     time.Duration
	initTimeout time.Duration
	log         pslog.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates an Executor serving the registered runtimes.
func New(opts ...ExecutorOption) *Executor {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = pslog.Ctx(context.Background())
	}

	e := &Executor{
		slots:       make(map[language.Tag]*slot, len(cfg.loaders)),
		timeout:     cfg.timeout,
		initTimeout: cfg.initTimeout,
		log:         cfg.log,
	}
	for tag, load := range cfg.loaders {
		if load == nil {
			continue
		}
		e.slots[tag] = &slot{tag: tag, load: load}
	}
	return e
}

// Supports reports whether tag can be executed.
func (e *Executor) Supports(tag language.Tag) bool {
	_, ok := e.slots[tag]
	return ok
}

// Languages returns the executable tags in lexical order.
func (e *Executor) Languages() []language.Tag {
	tags := make([]language.Tag, 0, len(e.slots))
	for tag := range e.slots {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// State returns the lifecycle state of the runtime for tag. Unsupported tags
// report StateUninitialized.
func (e *Executor) State(tag language.Tag) State {
	s, ok := e.slots[tag]
	if !ok {
		return StateUninitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Warm initializes the runtime for tag without running anything.
func (e *Executor) Warm(ctx context.Context, tag language.Tag) error {
	s, ok := e.slots[tag]
	if !ok {
		return unsupported(tag)
	}
	_, err := e.acquire(ctx, s)
	return err
}

// Run executes code in the language identified by tag. It never returns a Go
// error: every failure is reported through Result.Error.
func (e *Executor) Run(ctx context.Context, tag language.Tag, code string, opts ...Option) Result {
	start := time.Now()

	cfg := runConfig{timeout: e.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, ok := e.slots[tag]
	if !ok {
		return Result{Error: unsupported(tag), Duration: time.Since(start)}
	}
	if e.isClosed() {
		return Result{Error: ErrClosed, Duration: time.Since(start)}
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	rt, err := e.acquire(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			err = e.interrupted(ctx, tag, cfg.timeout)
		}
		return Result{Error: err, Duration: time.Since(start)}
	}

	stdout, stderr := &capture{}, &capture{}
	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Run(ctx, code, stdout, stderr)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}

	result := Result{
		Output:   stdout.String(),
		Duration: time.Since(start),
	}
	errText := strings.TrimSpace(stderr.String())

	switch {
	case err != nil && ctx.Err() != nil:
		result.Error = e.interrupted(ctx, tag, cfg.timeout)
	case err != nil:
		msg := errText
		if msg == "" {
			msg = err.Error()
		}
		result.Error = &Error{Kind: KindExecution, Lang: tag, Message: msg, Err: err}
	case errText != "":
		result.Error = &Error{Kind: KindExecution, Lang: tag, Message: errText}
	}

	if result.Output == "" && result.Error == nil {
		result.Output = NoOutput
	}
	return result
}

func (e *Executor) interrupted(ctx context.Context, tag language.Tag, timeout time.Duration) *Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{
			Kind:    KindTimeout,
			Lang:    tag,
			Message: fmt.Sprintf("timeout after %v", timeout),
			Err:     ctx.Err(),
		}
	}
	return &Error{Kind: KindExecution, Lang: tag, Message: "execution canceled", Err: ctx.Err()}
}

// acquire returns the ready runtime of s, initializing it if necessary.
// Concurrent callers share one initialization. The caller's context only
// bounds its own wait, never the initialization itself.
func (e *Executor) acquire(ctx context.Context, s *slot) (Runtime, error) {
	if rt, ok := s.ready(); ok {
		return rt, nil
	}

	ch := e.group.DoChan(string(s.tag), func() (any, error) {
		return e.initialize(context.WithoutCancel(ctx), s)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Runtime), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Executor) initialize(ctx context.Context, s *slot) (Runtime, error) {
	s.mu.Lock()
	if s.state == StateReady {
		rt := s.rt
		s.mu.Unlock()
		return rt, nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	if e.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.initTimeout)
		defer cancel()
	}

	log := e.log.With("lang", string(s.tag))
	log.Info("runtime initializing")
	start := time.Now()

	rt, err := load(ctx, s.load)
	if err == nil && rt == nil {
		err = errors.New("loader returned no runtime")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateFailed
		log.Warn("runtime initialization failed", "err", err)
		return nil, initFailed(s.tag, err)
	}

	if e.isClosed() {
		rt.Close(context.Background())
		s.state = StateUninitialized
		return nil, ErrClosed
	}

	s.rt = rt
	s.state = StateReady
	log.Info("runtime ready", "elapsed", time.Since(start))
	return rt, nil
}

// load calls fn, turning a panic into an error. The loader runs on a
// singleflight goroutine where an escaped panic would end the process.
func load(ctx context.Context, fn Loader) (rt Runtime, err error) {
	defer func() {
		if v := recover(); v != nil {
			rt, err = nil, fmt.Errorf("loader panic: %v", v)
		}
	}()
	return fn(ctx)
}

func (e *Executor) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Close releases every initialized runtime.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	ctx := context.Background()

	var errs []error
	for _, s := range e.slots {
		s.mu.Lock()
		if s.rt != nil {
			if err := s.rt.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.tag, err))
			}
			s.rt = nil
		}
		s.state = StateUninitialized
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
