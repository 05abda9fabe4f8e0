package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/emanueledeamicis/OpenShort/internal/platform/config"
)

// New builds the public listener (redirects and the JSON API) on cfg.Addr.
func New(cfg config.Config, handler http.Handler) *http.Server {
	return build(cfg.Addr, cfg, handler)
}

// NewAdmin builds the operator listener on cfg.AdminAddr. With pprof on,
// the write timeout is lifted so /debug/pprof/profile can stream.
func NewAdmin(cfg config.Config, handler http.Handler) *http.Server {
	srv := build(cfg.AdminAddr, cfg, handler)
	if cfg.PprofEnabled {
		srv.WriteTimeout = 0
	}
	return srv
}

func build(addr string, cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		Addr:              addr,
	}
}

// Serve runs every server until ctx is done or one of them stops on its own
// (typically a bind failure), then shuts all of them down within
// shutdownTimeout. It returns the first listener error joined with any
// shutdown error; a clean stop returns nil.
func Serve(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			slog.Info("http listening", "addr", srv.Addr)
			err := srv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errCh <- err
		}(srv)
	}

	var first error
	received := 0
	select {
	case <-ctx.Done():
	case first = <-errCh:
		received++
		if first != nil {
			slog.Error("http listener failed", "err", first)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var (
		mu          sync.Mutex
		shutdownErr error
		wg          sync.WaitGroup
	)
	for _, srv := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				mu.Lock()
				shutdownErr = errors.Join(shutdownErr, err)
				mu.Unlock()
			}
		}(srv)
	}
	wg.Wait()

	for ; received < len(servers); received++ {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	return errors.Join(first, shutdownErr)
}
