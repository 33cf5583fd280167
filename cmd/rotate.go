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
	"github.com/calicofm/spinlog/internal/rotator"
	"github.com/calicofm/spinlog/internal/station"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/spf13/cobra"
)

var (
	rotateLogFile  string
	rotateLogLevel string
	rotateOnce     bool
)

// rotateCmd represents the rotate command
var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Simulate a live stream by rotating sample tracks",
	Long: `Rotate the current track through a fixed pool of sample tracks.

This simulates a live radio stream for local development without needing
the real metadata feed. Rotations go through the same promotion path as
real announcements, so the one-current-track invariant holds.`,
	RunE: runRotate,
}

func init() {
	rootCmd.AddCommand(rotateCmd)

	rotateCmd.Flags().StringVar(&rotateLogFile, "log-file", "", "Log file path (default: stderr)")
	rotateCmd.Flags().StringVar(&rotateLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rotateCmd.Flags().BoolVar(&rotateOnce, "once", false, "Rotate a single time and exit")
}

func runRotate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(rotateLogFile, rotateLogLevel)

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	r := rotator.New(station.New(st), time.Duration(cfg.RotateInterval)*time.Second, cfg.ArtworkURL, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if rotateOnce {
		return r.Rotate(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
