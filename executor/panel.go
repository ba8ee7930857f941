package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/caffeineduck/codeflow/language"
)

var (
	ErrPanelClosed = errors.New("panel closed")
	ErrPanelBusy   = errors.New("panel busy")
)

// Panel is a run panel: it allows one run at a time and keeps the result of
// the last one until the next run starts.
type Panel struct {
	exec *Executor
	opts []Option

	mu      sync.Mutex
	running bool
	closed  bool
	last    *Result
}

// NewPanel returns a panel running code through e. opts apply to every run.
func (e *Executor) NewPanel(opts ...Option) *Panel {
	return &Panel{exec: e, opts: opts}
}

// Run executes code and records the result. It fails with ErrPanelBusy while
// another run of the same panel is in flight.
func (p *Panel) Run(ctx context.Context, tag language.Tag, code string) (Result, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Result{}, ErrPanelClosed
	}
	if p.running {
		p.mu.Unlock()
		return Result{}, ErrPanelBusy
	}
	p.running = true
	p.last = nil
	p.mu.Unlock()

	result := p.exec.Run(ctx, tag, code, p.opts...)

	p.mu.Lock()
	p.running = false
	if !p.closed {
		p.last = &result
	}
	p.mu.Unlock()
	return result, nil
}

// Running reports whether a run is in flight.
func (p *Panel) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Last returns the result of the most recent completed run.
func (p *Panel) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

// Clear drops the recorded result.
func (p *Panel) Clear() {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
}

// Close rejects further runs. A run in flight completes but its result is
// not kept.
func (p *Panel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.last = nil
	return nil
}
