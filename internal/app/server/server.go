package server

import (
	"context"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/far4599/video-downloader-api/internal/config"
	"github.com/far4599/video-downloader-api/internal/pkg/log"
	"github.com/far4599/video-downloader-api/internal/ratelimit"
	"github.com/far4599/video-downloader-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Server struct {
	conf *config.Config

	h       *service.HTTPHandler
	limiter ratelimit.Store
	access  zerolog.Logger

	// peers allowed to report the client address in forwarded headers
	trusted []netip.Prefix
}

func NewServer(conf *config.Config, h *service.HTTPHandler, limiter ratelimit.Store) *Server {
	// already checked by config.Validate
	trusted, _ := conf.TrustedProxyPrefixes()

	return &Server{
		conf:    conf,
		h:       h,
		limiter: limiter,
		access:  zerolog.New(os.Stdout).With().Timestamp().Logger(),
		trusted: trusted,
	}
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors(s.conf.HTTP.AllowedOrigins))

	r.NotFound(service.OnNotFound)
	r.MethodNotAllowed(service.OnMethodNotAllowed)

	r.Get("/", s.h.OnRoot())
	r.Get("/health", s.h.OnHealth())
	r.Get("/media/{name}", s.h.OnMedia())

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(apiKey(s.conf.HTTP.APIKey))

		r.Post("/info", s.h.OnInfo())
		r.Post("/qualities", s.h.OnQualities())
		r.Post("/download", s.h.OnDownload())
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.conf.HTTP.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)

		log.Logger.Infow("http server listening", "addr", s.conf.HTTP.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server failed")
	case <-ctx.Done():
	}

	log.Logger.Infow("http server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.conf.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down http server")
	}

	return nil
}
