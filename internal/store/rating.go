package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Polarity is the sign of a rating: thumbs up or thumbs down. It is a
// closed two-value enumeration; decoding rejects everything else.
type Polarity int

const (
	PolarityUp   Polarity = 1
	PolarityDown Polarity = -1
)

// ParsePolarity converts a raw integer into a Polarity, rejecting any
// value other than exactly 1 or -1.
func ParsePolarity(v int) (Polarity, error) {
	switch v {
	case 1:
		return PolarityUp, nil
	case -1:
		return PolarityDown, nil
	default:
		return 0, fmt.Errorf("polarity must be 1 or -1, got %d", v)
	}
}

func (p Polarity) String() string {
	switch p {
	case PolarityUp:
		return "up"
	case PolarityDown:
		return "down"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// RatingCounts holds the aggregate vote counts for one track.
type RatingCounts struct {
	ThumbsUp   int
	ThumbsDown int
}

// Sentinel errors for rating inserts. Both are expected outcomes under
// concurrent voting, not failures of the store itself.
var (
	// ErrDuplicateRating means a rating already exists for the
	// (track, listener) pair.
	ErrDuplicateRating = errors.New("rating already exists for this track and listener")

	// ErrTrackMissing means the referenced track does not exist.
	ErrTrackMissing = errors.New("track does not exist")
)

// InsertRating records a vote for the (trackID, listenerID) pair. The
// UNIQUE constraint on the pair is the authority for the one-vote
// invariant: a duplicate maps to ErrDuplicateRating, a dangling track
// reference to ErrTrackMissing.
func (s *Store) InsertRating(ctx context.Context, trackID int64, listenerID string, polarity Polarity, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (track_id, listener_id, polarity, created_at)
		VALUES (?, ?, ?, ?)
	`, trackID, listenerID, int(polarity), now.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRating
		}
		if isForeignKeyViolation(err) {
			return ErrTrackMissing
		}
		return fmt.Errorf("failed to insert rating: %w", err)
	}

	return nil
}

// RatingFor returns the polarity the listener gave the track, and whether
// a vote exists at all.
func (s *Store) RatingFor(ctx context.Context, trackID int64, listenerID string) (Polarity, bool, error) {
	var polarity int
	err := s.db.QueryRowContext(ctx, `
		SELECT polarity FROM ratings
		WHERE track_id = ? AND listener_id = ?
	`, trackID, listenerID).Scan(&polarity)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query rating: %w", err)
	}

	return Polarity(polarity), true, nil
}

// CountRatings aggregates the vote counts for a track. An unrated or
// unknown track reports (0, 0): the SUMs are coalesced so the result is
// never null.
func (s *Store) CountRatings(ctx context.Context, trackID int64) (RatingCounts, error) {
	return countRatings(ctx, s.db, trackID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRatings(ctx context.Context, q querier, trackID int64) (RatingCounts, error) {
	var counts RatingCounts
	err := q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN polarity = 1 THEN 1 ELSE 0 END), 0) AS thumbs_up,
			COALESCE(SUM(CASE WHEN polarity = -1 THEN 1 ELSE 0 END), 0) AS thumbs_down
		FROM ratings
		WHERE track_id = ?
	`, trackID).Scan(&counts.ThumbsUp, &counts.ThumbsDown)
	if err != nil {
		return RatingCounts{}, fmt.Errorf("failed to aggregate ratings: %w", err)
	}

	return counts, nil
}

// InsertRatingAndCount inserts a vote and recomputes the track's aggregate
// counts inside one transaction, so the returned counts always include the
// new vote and never miss a concurrent one.
func (s *Store) InsertRatingAndCount(ctx context.Context, trackID int64, listenerID string, polarity Polarity, now time.Time) (RatingCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RatingCounts{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ratings (track_id, listener_id, polarity, created_at)
		VALUES (?, ?, ?, ?)
	`, trackID, listenerID, int(polarity), now.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return RatingCounts{}, ErrDuplicateRating
		}
		if isForeignKeyViolation(err) {
			return RatingCounts{}, ErrTrackMissing
		}
		return RatingCounts{}, fmt.Errorf("failed to insert rating: %w", err)
	}

	counts, err := countRatings(ctx, tx, trackID)
	if err != nil {
		return RatingCounts{}, err
	}

	if err := tx.Commit(); err != nil {
		return RatingCounts{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return counts, nil
}
