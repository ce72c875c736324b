// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package server exposes batches, mailboxes and the current-key tracker over HTTP.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/matt-FFFFFF/fanout/internal/current"
	"github.com/matt-FFFFFF/fanout/internal/mailbox"
)

const (
	// DefaultMaxWait caps every long-poll.
	DefaultMaxWait = 5 * time.Minute
	// RequestIDHeader carries the id assigned to each request.
	RequestIDHeader = "X-Request-Id"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP API server.
type Server struct {
	bus      *changebus.Bus
	batches  *batch.Store
	mailbox  *mailbox.Registry
	current  *current.Tracker
	maxWait  time.Duration
	runCtx   context.Context //nolint:containedctx
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithMaxWait caps the wait any client may request.
func WithMaxWait(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.maxWait = d
		}
	}
}

// WithRunContext sets the context that bounds processes started for new batches.
// It defaults to context.Background so that processes outlive the request that created them.
func WithRunContext(ctx context.Context) Option {
	return func(s *Server) {
		s.runCtx = ctx
	}
}

// New creates a server over the given stores. All of them must share bus.
func New(bus *changebus.Bus, batches *batch.Store, reg *mailbox.Registry, tracker *current.Tracker, opts ...Option) *Server {
	s := &Server{
		bus:     bus,
		batches: batches,
		mailbox: reg,
		current: tracker,
		maxWait: DefaultMaxWait,
		runCtx:  context.Background(),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /batch", s.createBatchHandler())
	s.mux.HandleFunc("GET /batch", s.listBatchesHandler())
	s.mux.HandleFunc("GET /batch/{id}", s.batchStatusHandler())
	s.mux.HandleFunc("POST /batch/{id}/cancel", s.cancelBatchHandler())
	s.mux.HandleFunc("GET /batch/{id}/output", s.batchOutputHandler())
	s.mux.HandleFunc("GET /batch/{id}/watch", s.watchBatchHandler())

	s.mux.HandleFunc("GET /messages", s.listSubjectsHandler())
	s.mux.HandleFunc("GET /messages/{subject}", s.pollMessagesHandler())
	s.mux.HandleFunc("POST /messages/{subject}", s.publishHandler())

	s.mux.HandleFunc("GET /current", s.pollCurrentHandler())
	s.mux.HandleFunc("PUT /current", s.setCurrentHandler())
	s.mux.HandleFunc("DELETE /current", s.clearCurrentHandler())
}

// Handler returns the routes wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.mux)
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx, so pending long-polls return as soon as it is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctxlog.Info(ctx, "server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	ctxlog.Info(ctx, "server stopped")

	return nil
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set(RequestIDHeader, id)

		ctx := ctxlog.With(r.Context(), "request_id", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		ctxlog.Debug(ctx, "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

// statusRecorder remembers the response status. It passes hijacking through for websockets.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}

	r.status = http.StatusSwitchingProtocols

	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data) //nolint:errcheck,errchkjson
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
