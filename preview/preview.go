// Package preview serves the files of a session over HTTP so HTML documents
// can be viewed live in a browser.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"pkt.systems/pslog"

	"github.com/caffeineduck/codeflow/executor"
	"github.com/caffeineduck/codeflow/language"
	"github.com/caffeineduck/codeflow/session"
)

// Option configures the preview handler.
type Option func(*Handler)

// WithExecutor enables POST /files/{id}/run.
func WithExecutor(exec *executor.Executor) Option {
	return func(h *Handler) {
		h.exec = exec
	}
}

// WithLogger sets the request logger.
func WithLogger(log pslog.Logger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

// Handler serves the session.
type Handler struct {
	store *session.Store
	exec  *executor.Executor
	log   pslog.Logger

	mu     sync.Mutex
	panels map[string]*executor.Panel
}

// NewRouter returns the preview routes:
//
//	GET  /                        active file
//	GET  /files                   file list
//	GET  /files/{id}              file content
//	GET  /files/{id}/stylesheets  external stylesheets of an HTML file
//	POST /files/{id}/run          run a file (with WithExecutor)
//	GET  /health                  health check
func NewRouter(store *session.Store, opts ...Option) *chi.Mux {
	h := &Handler{
		store:  store,
		log:    pslog.Ctx(context.Background()),
		panels: make(map[string]*executor.Panel),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(logRequests(h.log))
	r.Use(recoverer(h.log))

	r.Get("/health", h.health)
	r.Get("/", h.active)
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.file)
		r.Get("/{id}/stylesheets", h.stylesheets)
		if h.exec != nil {
			r.Post("/{id}/run", h.run)
		}
	})
	return r
}

type fileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Active   bool   `json:"active"`
}

type runResponse struct {
	Output     string `json:"output"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	f, ok := h.store.Active()
	if !ok {
		writeError(w, http.StatusNotFound, "no open files")
		return
	}
	render(w, f)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	files := make([]fileInfo, 0, len(snap.Files))
	for _, f := range snap.Files {
		files = append(files, fileInfo{
			ID:       f.ID,
			Name:     f.Name,
			Language: string(f.Language),
			Active:   f.ID == snap.ActiveID,
		})
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	f, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	render(w, f)
}

func (h *Handler) stylesheets(w http.ResponseWriter, r *http.Request) {
	f, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	hrefs := []string{}
	if f.Language == language.HTML {
		hrefs = append(hrefs, Stylesheets(f.Content)...)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"stylesheets": hrefs})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	f, ok := h.store.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	result, err := h.panel(f.ID).Run(r.Context(), f.Language, f.Content)
	if errors.Is(err, executor.ErrPanelBusy) {
		writeError(w, http.StatusConflict, "file is already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := runResponse{
		Output:     result.Output,
		DurationMs: result.Duration.Milliseconds(),
		Error:      result.ErrorText(),
	}
	var execErr *executor.Error
	if errors.As(result.Error, &execErr) {
		resp.Kind = execErr.Kind.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) panel(id string) *executor.Panel {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.panels[id]
	if ok {
		return p
	}
	for other, op := range h.panels {
		if _, open := h.store.Get(other); !open {
			op.Close()
			delete(h.panels, other)
		}
	}
	p = h.exec.NewPanel()
	h.panels[id] = p
	return p
}

func render(w http.ResponseWriter, f session.File) {
	w.Header().Set("Cache-Control", "no-store")
	body := f.Content
	switch f.Language {
	case language.HTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		body = InjectBase(body)
	case language.CSS:
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
	case language.JSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve serves h on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
