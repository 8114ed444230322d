// Package devserver is a throwaway static-file server for the example
// page. It has no connection to the pressure observation core.
package devserver

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jadujoel/pressure-observer/internal/errors"
	"github.com/jadujoel/pressure-observer/internal/logger"
)

const readHeaderTimeout = 5 * time.Second

type Config struct {
	Addr string
	Root string
}

func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
		Root: "web",
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Addr == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "listen address required")
	}
	info, err := os.Stat(c.Root)
	if err != nil || !info.IsDir() {
		return errFactory.WithData(errors.ErrInvalidConfig, c.Root)
	}

	return nil
}

type Server struct {
	cfg Config
	srv *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s, nil
}

// Handler serves files from the configured root.
func (s *Server) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.cfg.Root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request")
		files.ServeHTTP(w, r)
	})
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	logger.Info().Str("addr", s.cfg.Addr).Str("root", s.cfg.Root).Msg("Dev server listening")

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.New().Wrap(errors.ErrStartServer, err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return errors.New().Wrap(errors.ErrStopServer, err)
	}

	return nil
}
