// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/authwatch/internal/logging"
)

// HTTPServerService runs the read-only API under the supervisor.
//
// The service binds the listener itself, so a bind failure is returned
// from Serve and suture retries it with backoff. Once the server has been
// shut down it cannot serve again, and the service is not restarted.
type HTTPServerService struct {
	server          *http.Server
	shutdownTimeout time.Duration
	name            string

	mu    sync.RWMutex
	bound net.Addr
}

// NewHTTPServerService wraps server, listening on server.Addr. A
// non-positive shutdownTimeout defaults to 10s.
func NewHTTPServerService(server *http.Server, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", h.server.Addr, err)
	}
	h.setBound(ln.Addr())
	defer h.setBound(nil)

	logging.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return suture.ErrDoNotRestart
		}
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	// The service context is done; shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
	defer cancel()
	err = h.server.Shutdown(shutdownCtx)
	<-errCh
	if err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	logging.Info().Msg("API server stopped")
	return ctx.Err()
}

// Addr returns the address the server is listening on, or nil when it is
// not serving.
func (h *HTTPServerService) Addr() net.Addr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.bound
}

func (h *HTTPServerService) setBound(addr net.Addr) {
	h.mu.Lock()
	h.bound = addr
	h.mu.Unlock()
}

// String implements fmt.Stringer for logging.
func (h *HTTPServerService) String() string {
	return h.name
}
