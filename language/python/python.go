// Package python runs Python code on a WASI build of the interpreter under
// wazero.
//
// The interpreter binary is not bundled. It is read from a local path or
// downloaded from an http(s) URL when the runtime is first loaded, compiled
// once, and instantiated fresh for every run.
package python

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/caffeineduck/codeflow/executor"
)

// Memory limits in wasm pages of 64KB.
const (
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384

	// MaxMemoryLimit is the 4GB address space of a 32-bit wasm memory.
	MaxMemoryLimit uint32 = 65536
)

// MaxAssetSize bounds a downloaded interpreter binary.
const MaxAssetSize = 256 << 20

var ErrNoSource = errors.New("python: interpreter source not configured")

// Option configures the runtime.
type Option func(*config)

type config struct {
	source           string
	cacheDir         string
	memoryLimitPages uint32
	client           *http.Client
}

// WithSource sets the interpreter binary location: a file path or an
// http(s) URL.
func WithSource(src string) Option {
	return func(c *config) {
		c.source = src
	}
}

// WithCacheDir enables wazero's on-disk compilation cache in dir.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		c.cacheDir = dir
	}
}

// WithMemoryLimit sets the maximum memory available to a run, in pages.
// Zero keeps the wazero default of 4GB.
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithHTTPClient sets the client used to download the interpreter.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// Runtime holds the compiled interpreter module.
type Runtime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
}

// Loader returns an executor.Loader that fetches and compiles the
// interpreter.
func Loader(opts ...Option) executor.Loader {
	return func(ctx context.Context) (executor.Runtime, error) {
		return Load(ctx, opts...)
	}
}

// Load fetches and compiles the interpreter.
func Load(ctx context.Context, opts ...Option) (*Runtime, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	wasm, err := Fetch(ctx, cfg.source, cfg.client)
	if err != nil {
		return nil, err
	}
	return Compile(ctx, wasm, opts...)
}

// Compile builds a Runtime from the interpreter binary.
func Compile(ctx context.Context, wasm []byte, opts ...Option) (*Runtime, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.memoryLimitPages > MaxMemoryLimit {
		return nil, fmt.Errorf("memory limit of %d pages exceeds %d", cfg.memoryLimitPages, MaxMemoryLimit)
	}

	var cache wazero.CompilationCache
	if cfg.cacheDir != "" {
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(cfg.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	r := &Runtime{runtime: rt, cache: cache}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("compile python: %w", err)
	}
	r.compiled = compiled
	return r, nil
}

// Run executes code with `python -c` in a new module instance.
func (r *Runtime) Run(ctx context.Context, code string, stdout, stderr io.Writer) error {
	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdout).
		WithStderr(stderr).
		WithArgs("python", "-c", code).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithName("")

	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, moduleConfig)
	if mod != nil {
		mod.Close(context.Background())
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("python exited with code %d", exitErr.ExitCode())
	}
	return fmt.Errorf("execution failed: %w", err)
}

// Close releases the compiled module and the wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fetch returns the interpreter binary at source, a file path or an http(s)
// URL. A nil client uses http.DefaultClient.
func Fetch(ctx context.Context, source string, client *http.Client) ([]byte, error) {
	if source == "" {
		return nil, ErrNoSource
	}
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read interpreter: %w", err)
		}
		return data, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download interpreter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download interpreter: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxAssetSize+1))
	if err != nil {
		return nil, fmt.Errorf("download interpreter: %w", err)
	}
	if len(data) > MaxAssetSize {
		return nil, fmt.Errorf("download interpreter: larger than %d bytes", MaxAssetSize)
	}
	return data, nil
}

// DefaultCacheDir returns the compilation cache location under the user's
// cache directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "codeflow")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "codeflow")
	}
	return filepath.Join(os.TempDir(), "codeflow-cache")
}
