package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mediaspool/transcoded/internal/config"
	"github.com/mediaspool/transcoded/internal/database"
	"github.com/mediaspool/transcoded/internal/ffmpeg"
	"github.com/mediaspool/transcoded/internal/history"
	transporthttp "github.com/mediaspool/transcoded/internal/http"
	"github.com/mediaspool/transcoded/internal/http/handlers"
	"github.com/mediaspool/transcoded/internal/maintenance"
	"github.com/mediaspool/transcoded/internal/manager"
	"github.com/mediaspool/transcoded/internal/observability"
	"github.com/mediaspool/transcoded/internal/progress"
	"github.com/mediaspool/transcoded/internal/registry"
	"github.com/mediaspool/transcoded/internal/storage"
	"github.com/mediaspool/transcoded/internal/upload"
	"github.com/mediaspool/transcoded/internal/version"
)

// uploadExpiryCron runs stale-session expiry every ten minutes.
const uploadExpiryCron = "0 */10 * * * *"

// serveCmd starts the HTTP server and worker pool.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcoding server",
	Long: `Start the transcoded HTTP server.

The server will:
1. Create the staging and output directories if absent
2. Start the encode worker pool
3. Schedule maintenance tasks (upload expiry, history purge)
4. Serve the REST API until interrupted

Examples:
  # Start with defaults
  transcoded serve

  # Start with a config file
  transcoded serve --config /etc/transcoded/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	info := version.GetInfo()
	logger.Info("transcoded starting",
		slog.String("version", info.Version),
		slog.String("commit", info.Commit),
		slog.String("built", info.Date),
		slog.String("go", info.GoVersion),
		slog.String("platform", info.Platform),
	)

	store, err := storage.NewLocalStore(cfg.Storage.StagingDir, cfg.Storage.OutputDir)
	if err != nil {
		return err
	}

	table := upload.NewSessionTable(store, logger)
	reg := registry.NewMemoryRegistry()
	hub := progress.NewHub(logger)
	driver := ffmpeg.NewClient(cfg.Transcode.FFmpegPath, cfg.Transcode.FFprobePath, cfg.Transcode.ProbeTimeout, logger)

	var (
		db   *database.DB
		hist *history.Service
	)
	if cfg.History.Enabled {
		db, err = database.New(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer db.Close()

		hist, err = history.NewService(db, logger)
		if err != nil {
			return fmt.Errorf("starting history service: %w", err)
		}
	}

	managerOpts := []manager.Option{
		manager.WithWorkers(cfg.Transcode.WorkerPoolSize),
	}
	if len(cfg.Transcode.DefaultFormats) > 0 {
		managerOpts = append(managerOpts, manager.WithDefaultFormats(cfg.Transcode.DefaultFormats))
	}
	if hist != nil {
		managerOpts = append(managerOpts, manager.WithArchiver(hist))
	}

	m := manager.NewManager(reg, store, driver, hub, logger, managerOpts...)
	m.Start()
	defer m.Stop()

	sched := maintenance.NewScheduler(logger)
	if err := sched.AddJob(uploadExpiryCron, "expire-uploads", func() {
		table.ExpireStale(cfg.Transcode.SessionTTL)
	}); err != nil {
		return err
	}
	if hist != nil {
		if err := sched.AddJob(cfg.History.PurgeCron, "purge-history", func() {
			if _, err := hist.Purge(context.Background(), cfg.History.Retention); err != nil {
				logger.Error("purging job history failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := transporthttp.New(cfg.Server, logger)
	handlers.NewJobHandler(m, reg, hist, logger).Register(srv.API())
	handlers.NewHealthHandler(reg, table, db).Register(srv.API())
	handlers.NewUploadHandler(table, cfg.Server.MaxChunkBytes, logger).Routes(srv.Router())
	handlers.NewEventsHandler(reg, hub, logger).Routes(srv.Router())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-errCh
}
