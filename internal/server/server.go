// Package server exposes a gateway.Gateway over HTTP and WebSocket.
//
// Rows are plain JSON. Change streams are WebSocket connections carrying one
// JSON change event per text frame. Errors are JSON objects with the gateway
// error code and message.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/notesync/internal/gateway"
)

// Server routes HTTP requests to a gateway.
type Server struct {
	gw       gateway.Gateway
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New builds the router for gw.
func New(gw gateway.Gateway) *Server {
	s := &Server{
		gw:     gw,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	s.router.Use(logRequests)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Methods(http.MethodGet).Path("/notes").HandlerFunc(s.listNotes)
	v1.Methods(http.MethodPost).Path("/notes").HandlerFunc(s.createNote)
	v1.Methods(http.MethodPatch).Path("/notes/{id}").HandlerFunc(s.updateNote)
	v1.Methods(http.MethodDelete).Path("/notes/{id}").HandlerFunc(s.deleteNote)

	v1.Methods(http.MethodGet).Path("/tasks").HandlerFunc(s.listTasks)
	v1.Methods(http.MethodPost).Path("/tasks").HandlerFunc(s.createTask)
	v1.Methods(http.MethodPatch).Path("/tasks/{id}").HandlerFunc(s.updateTask)
	v1.Methods(http.MethodDelete).Path("/tasks/{id}").HandlerFunc(s.deleteTask)

	v1.Methods(http.MethodGet).Path("/preferences/{user_id}").HandlerFunc(s.getPreferences)
	v1.Methods(http.MethodPut).Path("/preferences/{user_id}").HandlerFunc(s.putPreferences)

	v1.Methods(http.MethodGet).Path("/realtime").HandlerFunc(s.realtime)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, &gateway.Error{Code: gateway.ErrCodeNotFound, Op: "route", Message: "no route for " + r.URL.Path})
	})
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.Serve(l)
	}()
	slog.Info("server listening", "addr", l.Addr().String())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return err
	}
	slog.Info("server stopped")
	return nil
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Info("handled", "method", r.Method, "url", r.URL.String(), "duration", m.Duration, "status", m.Code)
	})
}
