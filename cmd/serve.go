package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calicofm/spinlog/internal/api"
	"github.com/calicofm/spinlog/internal/config"
	"github.com/calicofm/spinlog/internal/poller"
	"github.com/calicofm/spinlog/internal/rating"
	"github.com/calicofm/spinlog/internal/station"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/calicofm/spinlog/pkg/feed"
	"github.com/spf13/cobra"
)

var (
	serveLogFile    string
	serveLogLevel   string
	serveAddr       string
	serveWithPoller bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server that exposes now-playing state and ratings.

Endpoints:
  GET  /api/now-playing              - current track with thumb counts
  GET  /api/recently-played          - 5 most recently played tracks
  POST /api/update-track             - manually override the current track
  POST /api/tracks/:id/rate          - cast a thumbs up/down vote
  POST /api/tracks/:id/rating-status - check whether a listener has voted
  GET  /api/health                   - database health

With --with-poller the metadata poller runs in the same process; if it
reaches its failure threshold the whole process shuts down so a
supervisor can restart it.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Log file path (default: stderr)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveWithPoller, "with-poller", false, "Run the metadata poller in-process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	logger := setupLogger(serveLogFile, serveLogLevel)

	logger.Info().
		Str("version", version).
		Str("database", cfg.DatabasePath).
		Msg("Starting spinlog server")

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	stn := station.New(st)
	ledger := rating.New(st)

	srv := api.New(st, stn, ledger, api.Config{
		StationName:    cfg.StationName,
		StationTagline: cfg.StationTagline,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)

	if serveWithPoller {
		feedClient, err := feed.NewClient(feed.Config{
			URL:     cfg.FeedURL,
			Timeout: time.Duration(cfg.FeedTimeout) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to create feed client: %w", err)
		}

		p := poller.New(feedClient, stn, poller.Config{
			Interval:    time.Duration(cfg.PollInterval) * time.Second,
			MaxFailures: cfg.MaxFeedFailures,
			ArtworkURL:  cfg.ArtworkURL,
		}, logger)

		go func() {
			errChan <- p.Run(ctx)
		}()
	}

	go func() {
		errChan <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Component failed")
			shutdownServer(srv)
			return err
		}
	}

	cancel()
	shutdownServer(srv)

	logger.Info().Msg("Server stopped")
	return nil
}

func shutdownServer(srv *api.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
