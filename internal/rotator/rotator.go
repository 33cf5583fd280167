// Package rotator simulates a live stream for local development by
// rotating the current track through a fixed pool on an interval.
package rotator

import (
	"context"
	"math/rand"
	"time"

	"github.com/calicofm/spinlog/internal/station"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between rotations.
const DefaultInterval = 3 * time.Minute

func intp(v int) *int { return &v }

// pool is the sample tracks the simulator rotates through.
var pool = []station.TrackInfo{
	{Artist: "Shandi Sinnamon", Title: "He's A Dream", Album: "Flashdance Soundtrack", Year: intp(1983)},
	{Artist: "TLC", Title: "Ain't 2 Proud 2 Beg", Album: "Ooooooohhh... On the TLC Tip", Year: intp(1992)},
	{Artist: "The Raconteurs", Title: "Steady, As She Goes", Album: "Broken Boy Soldiers", Year: intp(2006)},
	{Artist: "Mick Jagger", Title: "Just Another Night", Album: "She's the Boss", Year: intp(1985)},
	{Artist: "Beyoncé", Title: "Irreplaceable", Album: "B'Day", Year: intp(2006)},
	{Artist: "Etta James", Title: "I'd Rather Go Blind", Album: "Tell Mama", Year: intp(1967)},
	{Artist: "The Beatles", Title: "Come Together", Album: "Abbey Road", Year: intp(1969)},
	{Artist: "Fleetwood Mac", Title: "Dreams", Album: "Rumours", Year: intp(1977)},
	{Artist: "Prince", Title: "When Doves Cry", Album: "Purple Rain", Year: intp(1984)},
	{Artist: "Whitney Houston", Title: "I Wanna Dance with Somebody", Album: "Whitney", Year: intp(1987)},
	{Artist: "Queen", Title: "Bohemian Rhapsody", Album: "A Night at the Opera", Year: intp(1975)},
	{Artist: "David Bowie", Title: "Heroes", Album: "Heroes", Year: intp(1977)},
	{Artist: "Madonna", Title: "Like a Prayer", Album: "Like a Prayer", Year: intp(1989)},
	{Artist: "Michael Jackson", Title: "Billie Jean", Album: "Thriller", Year: intp(1982)},
	{Artist: "Stevie Wonder", Title: "Superstition", Album: "Talking Book", Year: intp(1972)},
}

// Rotator writes rotations through the station so the same one-current
// invariant holds as for real feed announcements.
type Rotator struct {
	station  *station.Station
	interval time.Duration
	artwork  string
	rng      *rand.Rand
	logger   zerolog.Logger
}

// New creates a Rotator. A zero interval falls back to DefaultInterval.
func New(st *station.Station, interval time.Duration, artworkURL string, logger zerolog.Logger) *Rotator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Rotator{
		station:  st,
		interval: interval,
		artwork:  artworkURL,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger.With().Str("component", "rotator").Logger(),
	}
}

// Run rotates immediately, then on every interval until the context is
// cancelled.
func (r *Rotator) Run(ctx context.Context) error {
	r.logger.Info().
		Dur("interval", r.interval).
		Int("pool_size", len(pool)).
		Msg("Starting track rotator")

	if err := r.Rotate(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("Rotator stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Rotate(ctx); err != nil {
				return err
			}
		}
	}
}

// Rotate promotes a random pool track, avoiding an immediate repeat of
// whatever is currently playing.
func (r *Rotator) Rotate(ctx context.Context) error {
	current, err := r.station.Current(ctx)
	if err != nil {
		return err
	}

	next := pool[r.rng.Intn(len(pool))]
	if current != nil && next.Artist == current.Artist && next.Title == current.Title {
		others := make([]station.TrackInfo, 0, len(pool)-1)
		for _, t := range pool {
			if t.Artist == current.Artist && t.Title == current.Title {
				continue
			}
			others = append(others, t)
		}
		if len(others) > 0 {
			next = others[r.rng.Intn(len(others))]
		}
	}

	next.ArtworkURL = r.artwork
	track, err := r.station.ReportCurrent(ctx, next)
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("artist", track.Artist).
		Str("title", track.Title).
		Msg("Rotated now playing")

	return nil
}
