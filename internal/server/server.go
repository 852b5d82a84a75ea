// Package server wires the HTTP API: layer management, tile serving with
// the WMS proxy cache, GeoJSON delivery and the offline package endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andromapper/geomapper/internal/config"
	"github.com/andromapper/geomapper/internal/middleware"
	"github.com/andromapper/geomapper/internal/store"
	"github.com/andromapper/geomapper/internal/tilecache"
	"github.com/andromapper/geomapper/internal/wms"
)

type Server struct {
	cfg    config.Config
	store  *store.Store
	cache  *tilecache.Cache
	wms    *wms.Client
	logger *slog.Logger
}

func New(cfg config.Config, st *store.Store, cache *tilecache.Cache, wmsClient *wms.Client, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  st,
		cache:  cache,
		wms:    wmsClient,
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(s.logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Metrics())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/layers", s.handleCreateLayer)
		r.Get("/layers", s.handleListLayers)
		r.Get("/layers/{id}", s.handleGetLayer)

		r.Post("/offline-package", s.handleCreatePackage)
		r.Get("/offline-package/{id}", s.handlePackageStatus)
		r.Get("/offline-package/{id}/download", s.handlePackageDownload)
	})

	r.Get("/tiles/{layer}/{z}/{x}/{y}.png", s.handleTile)
	r.Get("/geojson/{layer}", s.handleGeoJSON)

	return r
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests for up to ten seconds.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		s.logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
