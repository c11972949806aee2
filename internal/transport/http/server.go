package http

import (
	"context"
	"errors"
	"net/http"
	"time"
)

type Server struct {
	srv *http.Server
}

// NewServer wires the handler into a mux. System routes get basic auth;
// a non-nil metricsHandler is mounted at /metrics.
func NewServer(addr string, h *Handler, creds Credentials, metricsHandler http.Handler) *Server {
	mux := http.NewServeMux()
	h.Register(mux)

	system := http.NewServeMux()
	h.RegisterSystem(system)
	mux.Handle("/system/", BasicAuth(creds, system))

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
