package executor

import (
	"time"

	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/language"
)

// DefaultTimeout bounds a run when no other timeout is configured.
const DefaultTimeout = 30 * time.Second

// Option configures a single run.
type Option func(*runConfig)

type runConfig struct {
	timeout time.Duration
}

// WithTimeout sets the maximum execution time. Zero disables the limit.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	loaders     map[language.Tag]Loader
	timeout     time.Duration
	initTimeout time.Duration
	log         pslog.Logger
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		loaders: make(map[language.Tag]Loader),
		timeout: DefaultTimeout,
	}
}

// WithRuntime registers the loader for tag. Only registered tags are
// executable; everything else is rejected as unsupported.
func WithRuntime(tag language.Tag, load Loader) ExecutorOption {
	return func(c *executorConfig) {
		c.loaders[tag] = load
	}
}

// WithDefaultTimeout sets the timeout applied to runs that do not pass
// WithTimeout.
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.timeout = d
	}
}

// WithInitTimeout bounds runtime initialization. Initialization is detached
// from the caller that triggered it, so this is the only limit it has.
func WithInitTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.initTimeout = d
	}
}

// WithLogger sets the logger for runtime lifecycle events.
func WithLogger(log pslog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.log = log
	}
}
