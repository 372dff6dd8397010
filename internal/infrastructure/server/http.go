package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"go-notification-hub/internal/infrastructure/config"
)

type HTTPServer struct {
	handler http.Handler
	cfg     config.ServerConfig

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg config.ServerConfig) *HTTPServer {
	return &HTTPServer{
		handler: handler,
		cfg:     cfg,
	}
}

// Start listens on the configured address and serves until Stop. WriteTimeout stays zero:
// event streams are long-lived responses and would be cut off by a write deadline.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:     h.handler,
		ReadTimeout: h.cfg.ReadTimeout,
		IdleTimeout: h.cfg.IdleTimeout,
	}
	h.mu.Lock()
	h.srv = srv
	h.addr = ln.Addr()
	h.mu.Unlock()

	var eg errgroup.Group
	eg.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr is the bound listener address, or nil before Start.
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}
