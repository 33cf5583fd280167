// Package rating enforces the one-vote-per-listener-per-track rule and
// serves live aggregate thumb counts.
package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calicofm/spinlog/internal/store"
)

// Validation errors are caller mistakes, surfaced immediately.
// ErrTrackNotFound and DuplicateVoteError are ordinary business outcomes
// that callers must branch on, not exceptional conditions.
var (
	ErrInvalidListener = errors.New("listener id must be a non-empty string")
	ErrInvalidPolarity = errors.New("polarity must be 1 (thumbs up) or -1 (thumbs down)")
	ErrTrackNotFound   = errors.New("track not found")
)

// DuplicateVoteError reports a rejected second vote along with the
// polarity the listener originally cast, so callers can render
// "you already voted up/down" without another query.
type DuplicateVoteError struct {
	Existing store.Polarity
}

func (e *DuplicateVoteError) Error() string {
	return fmt.Sprintf("listener has already voted %s on this track", e.Existing)
}

// Status is the advisory vote state for one (track, listener) pair.
type Status struct {
	HasVoted bool
	Polarity store.Polarity // meaningful only when HasVoted
}

// Ledger orchestrates rating creation and aggregation. It never mutates
// an existing vote; once cast, a rating is immutable.
type Ledger struct {
	store *store.Store
}

// New creates a Ledger backed by the given store.
func New(s *store.Store) *Ledger {
	return &Ledger{store: s}
}

// CastVote records one vote and returns the track's aggregate counts
// including it. Preconditions are checked in order, first failure wins:
// non-empty listener, valid polarity, existing track, no prior vote.
// The insert and the recount share one transaction, so the response can
// never miss a concurrent vote.
func (l *Ledger) CastVote(ctx context.Context, trackID int64, listenerID string, polarity int) (store.RatingCounts, error) {
	if listenerID == "" {
		return store.RatingCounts{}, ErrInvalidListener
	}

	p, err := store.ParsePolarity(polarity)
	if err != nil {
		return store.RatingCounts{}, ErrInvalidPolarity
	}

	track, err := l.store.GetTrack(ctx, trackID)
	if err != nil {
		return store.RatingCounts{}, fmt.Errorf("failed to look up track: %w", err)
	}
	if track == nil {
		return store.RatingCounts{}, ErrTrackNotFound
	}

	if existing, voted, err := l.store.RatingFor(ctx, trackID, listenerID); err != nil {
		return store.RatingCounts{}, fmt.Errorf("failed to check existing vote: %w", err)
	} else if voted {
		return store.RatingCounts{}, &DuplicateVoteError{Existing: existing}
	}

	counts, err := l.store.InsertRatingAndCount(ctx, trackID, listenerID, p, time.Now())
	if err == nil {
		return counts, nil
	}

	switch {
	case errors.Is(err, store.ErrDuplicateRating):
		// Lost a race with an identical vote. The unique constraint
		// decided the winner; report the surviving polarity.
		return store.RatingCounts{}, l.duplicateVoteOutcome(ctx, trackID, listenerID)
	case errors.Is(err, store.ErrTrackMissing):
		return store.RatingCounts{}, ErrTrackNotFound
	default:
		return store.RatingCounts{}, fmt.Errorf("failed to cast vote: %w", err)
	}
}

// duplicateVoteOutcome resolves the response for a vote the unique
// constraint rejected: re-read the surviving rating and report its
// polarity. A failed or empty re-read is its own error, not a
// DuplicateVoteError, so callers never render a bogus "already voted".
func (l *Ledger) duplicateVoteOutcome(ctx context.Context, trackID int64, listenerID string) error {
	existing, voted, err := l.store.RatingFor(ctx, trackID, listenerID)
	if err != nil {
		return fmt.Errorf("failed to read winning vote: %w", err)
	}
	if !voted {
		return fmt.Errorf("duplicate vote reported for track %d but no rating found", trackID)
	}
	return &DuplicateVoteError{Existing: existing}
}

// VoteStatus reports whether the listener has voted on the track and with
// which polarity. It deliberately answers HasVoted=false for nonexistent
// tracks as well as un-voted listeners: this is advisory UI state, not
// authoritative.
func (l *Ledger) VoteStatus(ctx context.Context, trackID int64, listenerID string) (Status, error) {
	if listenerID == "" {
		return Status{}, ErrInvalidListener
	}

	polarity, voted, err := l.store.RatingFor(ctx, trackID, listenerID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to query vote status: %w", err)
	}

	return Status{HasVoted: voted, Polarity: polarity}, nil
}

// Counts returns the live aggregate counts for a track. Unknown and
// unrated tracks both report zero counts.
func (l *Ledger) Counts(ctx context.Context, trackID int64) (store.RatingCounts, error) {
	return l.store.CountRatings(ctx, trackID)
}
