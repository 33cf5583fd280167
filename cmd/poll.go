package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calicofm/spinlog/internal/config"
	"github.com/calicofm/spinlog/internal/poller"
	"github.com/calicofm/spinlog/internal/station"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/calicofm/spinlog/pkg/feed"
	"github.com/spf13/cobra"
)

var (
	pollLogFile  string
	pollLogLevel string
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run the stream metadata poller",
	Long: `Run the metadata poller that keeps now-playing state in sync with the
stream's metadata feed.

Every cycle it fetches the feed document, promotes the announced track to
currently playing, and backfills the feed's previous-track entries into
history. Cycles are strictly serial: the next one starts only after the
previous has finished.

After 5 consecutive failed cycles (configurable) the poller stops and the
process exits non-zero so a supervisor can take over. It never loops
forever against a dead feed.`,
	RunE: runPoll,
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().StringVar(&pollLogFile, "log-file", "", "Log file path (default: stderr)")
	pollCmd.Flags().StringVar(&pollLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(pollLogFile, pollLogLevel)

	logger.Info().
		Str("version", version).
		Str("feed_url", cfg.FeedURL).
		Str("database", cfg.DatabasePath).
		Msg("Starting spinlog poller")

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	feedClient, err := feed.NewClient(feed.Config{
		URL:     cfg.FeedURL,
		Timeout: time.Duration(cfg.FeedTimeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create feed client: %w", err)
	}

	p := poller.New(feedClient, station.New(st), poller.Config{
		Interval:    time.Duration(cfg.PollInterval) * time.Second,
		MaxFailures: cfg.MaxFeedFailures,
		ArtworkURL:  cfg.ArtworkURL,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("Poller stopped")
		return nil
	}
	return err
}
