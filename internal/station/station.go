// Package station owns the "what is playing right now" state: a single
// current-track pointer, an ordered recently-played history, and the
// dedup logic that keeps repeated sightings of the same song from
// piling up as duplicate rows.
package station

import (
	"context"
	"fmt"

	"github.com/calicofm/spinlog/internal/store"
)

// RecentLimit is how many recently played tracks callers get back.
const RecentLimit = 5

// TrackInfo is an announcement of a playing track from a feed, a manual
// override, or the rotation simulator.
type TrackInfo struct {
	Artist     string
	Title      string
	Album      string
	Year       *int
	ArtworkURL string
}

// Station is the now-playing state machine.
type Station struct {
	store *store.Store
}

// New creates a Station backed by the given store.
func New(s *store.Store) *Station {
	return &Station{store: s}
}

// Resolve deduplicates an (artist, title) pair against known tracks.
// It returns the existing track's id when one matches exactly, or
// isNew=true when the caller should create one. Pure query, no side
// effects. Matching is exact and case-sensitive; empty strings are
// legitimate distinct keys since the feed may report unknowns.
func (st *Station) Resolve(ctx context.Context, artist, title string) (id int64, isNew bool, err error) {
	track, err := st.store.FindTrackByArtistTitle(ctx, artist, title)
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve track: %w", err)
	}
	if track == nil {
		return 0, true, nil
	}
	return track.ID, false, nil
}

// ReportCurrent makes the announced track the single current one. A new
// (artist, title) pair is created already current; a known pair is
// promoted and its descriptive fields are overwritten with the
// announcement's, so the freshest metadata wins over the first sighting.
func (st *Station) ReportCurrent(ctx context.Context, info TrackInfo) (*store.Track, error) {
	fields := store.TrackFields{
		Artist:     info.Artist,
		Title:      info.Title,
		Album:      info.Album,
		Year:       info.Year,
		ArtworkURL: info.ArtworkURL,
	}

	id, isNew, err := st.Resolve(ctx, info.Artist, info.Title)
	if err != nil {
		return nil, err
	}

	if isNew {
		id, err = st.store.CreateTrack(ctx, fields, true)
		if err != nil {
			return nil, fmt.Errorf("failed to create current track: %w", err)
		}
	} else {
		if err := st.store.PromoteTrack(ctx, id, fields); err != nil {
			return nil, fmt.Errorf("failed to promote track: %w", err)
		}
	}

	track, err := st.store.GetTrack(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read back track: %w", err)
	}

	return track, nil
}

// Current returns the currently playing track, or nil if no track has
// ever been promoted. Substituting a station-identification placeholder
// is the caller's concern.
func (st *Station) Current(ctx context.Context) (*store.Track, error) {
	return st.store.CurrentTrack(ctx)
}

// RecentlyPlayed returns up to n previously played tracks, most recent
// first. The current track is never included.
func (st *Station) RecentlyPlayed(ctx context.Context, n int) ([]store.Track, error) {
	return st.store.ListRecentlyPlayed(ctx, n)
}

// HistoryEntry is a previously played track reported alongside a feed
// announcement.
type HistoryEntry struct {
	Artist     string
	Title      string
	ArtworkURL string
}

// ApplyFeed applies a whole feed announcement at once: the announced
// track becomes current (same semantics as ReportCurrent) and every
// previous entry unknown to the station is backfilled as non-current
// history. The entire batch is one store transaction, so a failure
// anywhere leaves the station exactly as it was.
func (st *Station) ApplyFeed(ctx context.Context, info TrackInfo, previous []HistoryEntry) (*store.Track, error) {
	fields := store.TrackFields{
		Artist:     info.Artist,
		Title:      info.Title,
		Album:      info.Album,
		Year:       info.Year,
		ArtworkURL: info.ArtworkURL,
	}

	prevFields := make([]store.TrackFields, 0, len(previous))
	for _, entry := range previous {
		prevFields = append(prevFields, store.TrackFields{
			Artist:     entry.Artist,
			Title:      entry.Title,
			ArtworkURL: entry.ArtworkURL,
		})
	}

	id, err := st.store.ApplyAnnouncement(ctx, fields, prevFields)
	if err != nil {
		return nil, fmt.Errorf("failed to apply feed announcement: %w", err)
	}

	track, err := st.store.GetTrack(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read back track: %w", err)
	}

	return track, nil
}
