package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
)

const shutdownGrace = 10 * time.Second

// Server runs an http.Handler until its context is cancelled.
type Server struct {
	name     string
	addr     string
	handler  http.Handler
	maxConns int
	ready    chan net.Addr
}

// NewServer creates a server for handler on addr. maxConns bounds
// simultaneous connections; zero means unbounded.
func NewServer(name, addr string, handler http.Handler, maxConns int) *Server {
	return &Server{
		name:     name,
		addr:     addr,
		handler:  handler,
		maxConns: maxConns,
		ready:    make(chan net.Addr, 1),
	}
}

// Ready yields the bound address once the server is accepting.
func (s *Server) Ready() <-chan net.Addr {
	return s.ready
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("server_listening",
		slog.String("component", s.name),
		slog.String("addr", ln.Addr().String()))
	s.ready <- ln.Addr()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", s.name, err)
	}
	slog.Info("server_stopped", slog.String("component", s.name))
	return nil
}
