// Package server exposes the exporter over HTTP.
//
// Routes:
//
//	GET  /healthz        opens a connection, pings it and closes it
//	POST /v1/query.csv   body is SQL text, response is the CSV export
//	POST /v1/query       body is SQL text, response is the result table
//	                     (?format=json|yaml|arrow, json by default)
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/hdbexport/internal/export"
	"github.com/koustreak/hdbexport/internal/logger"
)

const (
	// maxQueryBytes caps the request body holding the SQL text.
	maxQueryBytes = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// Server serves export requests. Every request runs its own export; nothing
// is shared between requests besides the Exporter configuration.
type Server struct {
	exp    *export.Exporter
	log    *logger.Logger
	router chi.Router
}

// New builds a Server around exp.
func New(exp *export.Exporter, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{exp: exp, log: log}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler with all routes and middleware mounted.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/query.csv", s.handleQueryCSV)
		r.Post("/query", s.handleQueryTable)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, giving in-flight exports shutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Infof("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// requestLogger logs one line per request through the server's zerolog
// logger and hands the request-scoped logger to the handlers.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("request_id", chimw.GetReqID(r.Context())).Logger()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(reqLog.WithContext(r.Context())))

		reqLog.InfoWith("request", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
