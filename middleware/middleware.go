// Package middleware adapts a session.Engine to net/http's handler chain:
// it starts a session at the top of the request, makes the resulting Engine
// available to downstream handlers via the request context, and commits the
// session (persisting it and attaching the Set-Cookie header) once the
// handler chain returns.
package middleware

import (
	"context"
	"net/http"

	"golang.org/x/exp/slog"

	"github.com/arn-sess/sessguard/session"
	"github.com/arn-sess/sessguard/store"
)

// contextKey is the type used for values this package stores in the request
// Context, kept unexported so it can't collide with keys set elsewhere.
type contextKey string

const contextKeyEngine = contextKey("session-engine")

// Manager wraps a store.Store and session.Config into reusable
// middleware: every request gets its own session.Engine, constructed fresh
// from the same store and config.
type Manager struct {
	store store.Store
	cfg   session.Config
}

// NewManager returns a Manager that constructs one session.Engine per
// request against s, using cfg.
func NewManager(s store.Store, cfg session.Config) *Manager {
	return &Manager{store: s, cfg: cfg}
}

// responseWriter commits the session on the wrapped handler's first
// WriteHeader or Write call, so the Set-Cookie header ends up attached
// before headers are flushed. Session changes the handler makes after that
// point are not persisted.
type responseWriter struct {
	http.ResponseWriter
	engine    *session.Engine
	ctx       context.Context
	committed bool
}

func (w *responseWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	if err := w.engine.Commit(w.ctx, w.ResponseWriter); err != nil {
		slog.Error("failed to commit session", "error", err)
	}
}

func (w *responseWriter) WriteHeader(status int) {
	w.commit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

// Manage starts a session for every inbound request, stores the resulting
// Engine in the request's Context (retrievable via Get), and commits it
// when next first writes a status code or body. If the handler never writes
// anything (e.g., it only delegates further), the session is committed after
// next returns.
func (m *Manager) Manage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		engine, err := session.NewEngine(m.store, m.cfg)
		if err != nil {
			slog.Error("failed to construct session engine", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if _, err := engine.Start(r.Context(), r); err != nil {
			slog.Error("failed to start session", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		rw := &responseWriter{ResponseWriter: w, engine: engine, ctx: r.Context()}
		ctx := context.WithValue(r.Context(), contextKeyEngine, engine)
		next.ServeHTTP(rw, r.WithContext(ctx))
		rw.commit()
	})
}

// Get returns the session.Engine the Manage middleware stored in ctx, or
// nil if none is present (i.e., the handler isn't wrapped by Manage).
func Get(ctx context.Context) *session.Engine {
	e, _ := ctx.Value(contextKeyEngine).(*session.Engine)
	return e
}
