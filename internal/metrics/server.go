package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"whisx/internal/logging"
	"whisx/internal/services"
)

// Server is a running /metrics endpoint.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// Serve listens on addr and serves handler at /metrics until Close.
func Serve(addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	logger = logging.NewComponentLogger(logger, "metrics")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "metrics", "listen", "Cannot listen on "+addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint stopped", logging.Error(err))
		}
	}()
	logger.Info("serving metrics",
		logging.String(logging.FieldEventType, "metrics_listen"),
		logging.String("addr", ln.Addr().String()),
	)
	return s, nil
}

// Addr returns the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close shuts the endpoint down, waiting for in-flight scrapes until ctx ends.
func (s *Server) Close(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
