// Command geomapper runs the map layer server and its ingestion worker.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andromapper/geomapper/internal/config"
	"github.com/andromapper/geomapper/internal/fetch"
	"github.com/andromapper/geomapper/internal/httpclient"
	"github.com/andromapper/geomapper/internal/ingest"
	"github.com/andromapper/geomapper/internal/logger"
	"github.com/andromapper/geomapper/internal/server"
	"github.com/andromapper/geomapper/internal/store"
	"github.com/andromapper/geomapper/internal/tilecache"
	"github.com/andromapper/geomapper/internal/toolchain"
	"github.com/andromapper/geomapper/internal/wms"
)

func main() {
	root := &cobra.Command{
		Use:           "geomapper",
		Short:         "Map layer ingestion and tile serving",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), workerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			log := buildLogger(cfg, "server")

			st, cache, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			wmsClient := wms.New(httpclient.NewOutbound(cfg.WMSTimeout))
			srv := server.New(cfg, st, cache, wmsClient, log)
			return srv.Run(cmd.Context())
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background ingestion worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			log := buildLogger(cfg, "worker")

			st, cache, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			workerID := cfg.WorkerID
			if workerID == "" {
				workerID = uuid.NewString()
			}

			fetcher := fetch.New(
				httpclient.NewOutbound(cfg.FetchTimeout),
				filepath.Join(cfg.StorageDir, "uploads"),
				cfg.MaxDownloadBytes,
			)
			tc := toolchain.New(toolchain.ExecRunner{})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Info("worker starting", "worker_id", workerID)
			w := ingest.NewWorker(workerID, st, fetcher, tc, cache, log, cfg.WorkerPoll)
			return w.Run(ctx)
		},
	}
}

func buildLogger(cfg config.Config, component string) *slog.Logger {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: component,
	}, os.Stdout)
	return logger.NewSlog(&zl)
}

func openStorage(cfg config.Config) (*store.Store, *tilecache.Cache, error) {
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create storage dir: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	cache, err := tilecache.New(cfg.StorageDir, cfg.TileMemCacheSize)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, cache, nil
}
