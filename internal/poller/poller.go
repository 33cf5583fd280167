// Package poller drives the now-playing state from the stream's metadata
// feed on a fixed interval, with a hard cutoff after too many consecutive
// failures instead of degrading silently forever.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/calicofm/spinlog/internal/station"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/calicofm/spinlog/pkg/feed"
	"github.com/rs/zerolog"
)

// ErrTooManyFailures is returned by Run when the consecutive-failure
// threshold is reached. The poller is stopped for good at that point;
// restarting is an operational action for the owning process.
var ErrTooManyFailures = errors.New("poller: too many consecutive feed failures")

// ErrStopped is returned by Run on a poller that has already terminated.
var ErrStopped = errors.New("poller: already stopped")

// Source fetches the feed's metadata document.
type Source interface {
	Fetch(ctx context.Context) (*feed.Metadata, error)
}

// Announcer applies one feed announcement to the now-playing state.
// *station.Station is the production implementation.
type Announcer interface {
	ApplyFeed(ctx context.Context, info station.TrackInfo, previous []station.HistoryEntry) (*store.Track, error)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Time between cycles (default 15s)
	MaxFailures int           // Consecutive failures before stopping (default 5)
	ArtworkURL  string        // Live cover art URL; cache-busted per cycle
}

// Poller runs strictly serial fetch-and-apply cycles: the next cycle is
// scheduled only after the previous one finishes, so cycles never overlap
// or pile up behind a slow feed.
type Poller struct {
	source   Source
	station  Announcer
	interval time.Duration
	maxFails int
	artwork  string
	logger   zerolog.Logger

	mu       sync.Mutex
	stopped  bool
	failures int
}

// New creates a Poller.
func New(source Source, st Announcer, cfg Config, logger zerolog.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	maxFails := cfg.MaxFailures
	if maxFails <= 0 {
		maxFails = 5
	}

	return &Poller{
		source:   source,
		station:  st,
		interval: interval,
		maxFails: maxFails,
		artwork:  cfg.ArtworkURL,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run executes one synchronous bootstrap cycle, then polls until the
// context is cancelled or the failure threshold is reached. It returns
// ErrTooManyFailures on threshold, the context's error on cancellation.
// Once Run returns for any reason the poller is terminally stopped.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	}()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("max_failures", p.maxFails).
		Msg("Starting metadata poller")

	// Bootstrap fetch before the loop so the first "now playing" is
	// populated before the service is considered ready.
	if err := p.runCycle(ctx); err != nil {
		return err
	}

	// A timer armed after each cycle, never a fixed-rate ticker: the
	// next cycle must not start until the previous one has finished.
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-timer.C:
			if err := p.runCycle(ctx); err != nil {
				return err
			}
			timer.Reset(p.interval)
		}
	}
}

// Stopped reports whether the poller has terminated.
func (p *Poller) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// ConsecutiveFailures returns the current failure streak.
func (p *Poller) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// runCycle performs one fetch-and-apply cycle and updates the failure
// counter. It returns a non-nil error only for the terminal conditions
// (threshold reached, context cancelled); ordinary cycle failures are
// absorbed into the counter.
func (p *Poller) runCycle(ctx context.Context) error {
	err := p.cycle(ctx)
	if err == nil {
		p.mu.Lock()
		p.failures = 0
		p.mu.Unlock()
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.mu.Lock()
	p.failures++
	failures := p.failures
	p.mu.Unlock()

	p.logger.Warn().
		Err(err).
		Int("consecutive_failures", failures).
		Int("max_failures", p.maxFails).
		Msg("Poll cycle failed")

	if failures >= p.maxFails {
		p.logger.Error().
			Int("consecutive_failures", failures).
			Msg("Failure threshold reached, stopping poller")
		return fmt.Errorf("%w (last error: %v)", ErrTooManyFailures, err)
	}

	return nil
}

// cycle fetches the feed and applies it in one batch: the current track
// is promoted and every previous entry is backfilled as non-current
// history, all inside a single station transaction. A failed cycle
// therefore alters no state; the failure accounting is the caller's.
func (p *Poller) cycle(ctx context.Context) error {
	md, err := p.source.Fetch(ctx)
	if err != nil {
		return err
	}

	info := station.TrackInfo{
		Artist:     md.Artist,
		Title:      md.Title,
		Album:      md.Album,
		Year:       md.Year,
		ArtworkURL: p.liveArtworkURL(),
	}

	previous := make([]station.HistoryEntry, 0, len(md.Previous))
	for _, prev := range md.Previous {
		previous = append(previous, station.HistoryEntry{
			Artist:     prev.Artist,
			Title:      prev.Title,
			ArtworkURL: historyArtworkURL,
		})
	}

	track, err := p.station.ApplyFeed(ctx, info, previous)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("artist", track.Artist).
		Str("title", track.Title).
		Msg("Now playing")

	return nil
}

// historyArtworkURL is the placeholder art for backfilled tracks; the
// live cover rotates too fast for old entries to keep a meaningful URL.
const historyArtworkURL = "https://via.placeholder.com/300x300/231F20/D8F2D5?text=Previous"

// liveArtworkURL appends a cache-busting timestamp so clients re-fetch
// the cover image when the track changes.
func (p *Poller) liveArtworkURL() string {
	if p.artwork == "" {
		return ""
	}
	return fmt.Sprintf("%s?t=%d", p.artwork, time.Now().Unix())
}
