// Package app wires configuration, storage, the session and the execution
// bridge into a running editor.
package app

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/executor"
	"github.com/caffeineduck/codeflow/fileio"
	"github.com/caffeineduck/codeflow/internal/appconfig"
	"github.com/caffeineduck/codeflow/language"
	"github.com/caffeineduck/codeflow/language/javascript"
	"github.com/caffeineduck/codeflow/language/lua"
	"github.com/caffeineduck/codeflow/language/python"
	"github.com/caffeineduck/codeflow/persist"
	"github.com/caffeineduck/codeflow/session"
	"github.com/caffeineduck/codeflow/settings"
)

// App is an editor instance restored from storage.
type App struct {
	Config   appconfig.Config
	Sessions *session.Store
	Settings *settings.Store
	Exec     *executor.Executor
	Panel    *executor.Panel

	persist *persist.Adapter
	watcher *fileio.Watcher
	detach  func()
	log     pslog.Logger
}

// Open restores the session and settings from the configured storage and
// starts writing changes back.
func Open(ctx context.Context, cfg appconfig.Config) (*App, error) {
	log := pslog.Ctx(ctx)

	backend, err := OpenBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}
	adapter := persist.New(backend,
		persist.WithObfuscation(cfg.Storage.Obfuscate),
		persist.WithLogger(log),
	)

	sessions := session.New()
	sessions.Restore(adapter.LoadSession(ctx))
	prefs := settings.NewStore(adapter.LoadSettings(ctx))

	exec := NewExecutor(cfg, log)

	a := &App{
		Config:   cfg,
		Sessions: sessions,
		Settings: prefs,
		Exec:     exec,
		Panel:    exec.NewPanel(),
		persist:  adapter,
		detach:   adapter.Attach(sessions, prefs),
		log:      log,
	}

	watcher, err := fileio.NewWatcher(a.reload, fileio.WithWatchLogger(log))
	if err != nil {
		log.Warn("file watching disabled", "err", err)
	} else {
		a.watcher = watcher
	}

	log.Info("session restored", "files", sessions.Len(), "driver", cfg.Storage.Driver)
	return a, nil
}

// OpenBackend returns the storage backend selected by cfg.
func OpenBackend(cfg appconfig.StorageConfig) (persist.Backend, error) {
	switch cfg.Driver {
	case appconfig.DriverMemory:
		return persist.NewMemoryBackend(), nil
	case appconfig.DriverSQLite, "":
		backend, err := persist.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// NewExecutor registers the runtimes enabled by cfg.
func NewExecutor(cfg appconfig.Config, log pslog.Logger) *executor.Executor {
	pyOpts := []python.Option{
		python.WithSource(cfg.Python.Source),
		python.WithMemoryLimit(cfg.Python.MemoryLimitPages()),
	}
	if cfg.Python.CacheDir != "" {
		pyOpts = append(pyOpts, python.WithCacheDir(cfg.Python.CacheDir))
	}

	opts := []executor.ExecutorOption{
		executor.WithRuntime(language.Python, python.Loader(pyOpts...)),
		executor.WithRuntime(language.Lua, lua.Loader()),
		executor.WithRuntime(language.Luau, lua.Loader()),
		executor.WithDefaultTimeout(cfg.Execution.Timeout()),
		executor.WithInitTimeout(cfg.Execution.InitTimeout()),
		executor.WithLogger(log),
	}
	if cfg.Execution.JavaScript {
		opts = append(opts, executor.WithRuntime(language.JavaScript, javascript.Loader()))
	}
	return executor.New(opts...)
}

// RunActive runs the active file in the run panel.
func (a *App) RunActive(ctx context.Context) (executor.Result, error) {
	f, ok := a.Sessions.Active()
	if !ok {
		return executor.Result{}, session.ErrFileNotFound
	}
	return a.Panel.Run(ctx, f.Language, f.Content)
}

// OpenPath imports a file from disk, makes it active and follows later
// changes to it on disk.
func (a *App) OpenPath(path string) (session.File, error) {
	doc, err := fileio.Import(path)
	if err != nil {
		return session.File{}, err
	}
	f := a.Sessions.Open(doc.Name, doc.Content, doc.Language)
	if a.watcher != nil {
		if err := a.watcher.Watch(f.ID, doc.Path); err != nil {
			a.log.Warn("cannot follow file", "file", doc.Path, "err", err)
		}
	}
	return f, nil
}

// CloseFile removes a file from the session and stops following it.
func (a *App) CloseFile(id string) {
	if a.watcher != nil {
		a.watcher.Unwatch(id)
	}
	a.Sessions.Close(id)
}

func (a *App) reload(id string, doc fileio.Document) {
	err := a.Sessions.UpdateContent(id, doc.Content)
	if errors.Is(err, session.ErrFileNotFound) {
		a.watcher.Unwatch(id)
		return
	}
	if err != nil {
		a.log.Warn("reload file failed", "file", doc.Path, "err", err)
		return
	}
	a.log.Info("file reloaded from disk", "file", doc.Path)
}

// Flush waits until every change so far has been persisted.
func (a *App) Flush(ctx context.Context) error {
	return a.persist.Flush(ctx)
}

// Close persists pending changes and releases runtimes and storage.
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.Panel.Close()
	a.detach()
	if err := a.persist.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if err := a.Exec.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
