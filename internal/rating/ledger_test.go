package rating

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/calicofm/spinlog/internal/store"
)

func createTestLedger(t *testing.T) (*Ledger, int64) {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	trackID, err := s.CreateTrack(context.Background(), store.TrackFields{
		Artist: "Whitney Houston",
		Title:  "I Wanna Dance with Somebody",
	}, true)
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	return New(s), trackID
}

func TestCastVoteValidationOrder(t *testing.T) {
	l, trackID := createTestLedger(t)
	ctx := context.Background()

	t.Run("empty listener wins over bad polarity", func(t *testing.T) {
		_, err := l.CastVote(ctx, trackID, "", 7)
		if !errors.Is(err, ErrInvalidListener) {
			t.Fatalf("expected ErrInvalidListener, got %v", err)
		}
	})

	t.Run("bad polarity wins over missing track", func(t *testing.T) {
		_, err := l.CastVote(ctx, 9999, "u1", 0)
		if !errors.Is(err, ErrInvalidPolarity) {
			t.Fatalf("expected ErrInvalidPolarity, got %v", err)
		}
	})

	t.Run("missing track", func(t *testing.T) {
		_, err := l.CastVote(ctx, 9999, "u1", 1)
		if !errors.Is(err, ErrTrackNotFound) {
			t.Fatalf("expected ErrTrackNotFound, got %v", err)
		}
	})

	for _, bad := range []int{0, 2, -2, 10} {
		if _, err := l.CastVote(ctx, trackID, "u1", bad); !errors.Is(err, ErrInvalidPolarity) {
			t.Errorf("polarity %d: expected ErrInvalidPolarity, got %v", bad, err)
		}
	}
}

func TestCastVoteSuccess(t *testing.T) {
	l, trackID := createTestLedger(t)
	ctx := context.Background()

	counts, err := l.CastVote(ctx, trackID, "u1", 1)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if counts.ThumbsUp != 1 || counts.ThumbsDown != 0 {
		t.Errorf("expected (1, 0), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
	}
}

func TestCastVoteDuplicateRejected(t *testing.T) {
	l, trackID := createTestLedger(t)
	ctx := context.Background()

	if _, err := l.CastVote(ctx, trackID, "u1", 1); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	// Second vote with the opposite polarity: rejected, original reported.
	_, err := l.CastVote(ctx, trackID, "u1", -1)
	var dup *DuplicateVoteError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateVoteError, got %v", err)
	}
	if dup.Existing != store.PolarityUp {
		t.Errorf("expected existing polarity up, got %v", dup.Existing)
	}

	// And with the same polarity: still rejected.
	_, err = l.CastVote(ctx, trackID, "u1", 1)
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateVoteError, got %v", err)
	}

	counts, err := l.Counts(ctx, trackID)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.ThumbsUp != 1 || counts.ThumbsDown != 0 {
		t.Errorf("aggregate must stay (1, 0), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
	}
}

func TestDuplicateVoteOutcome(t *testing.T) {
	l, trackID := createTestLedger(t)
	ctx := context.Background()

	t.Run("winning vote found", func(t *testing.T) {
		if err := l.store.InsertRating(ctx, trackID, "racer", store.PolarityDown, time.Now()); err != nil {
			t.Fatalf("InsertRating: %v", err)
		}

		err := l.duplicateVoteOutcome(ctx, trackID, "racer")
		var dup *DuplicateVoteError
		if !errors.As(err, &dup) {
			t.Fatalf("expected DuplicateVoteError, got %v", err)
		}
		if dup.Existing != store.PolarityDown {
			t.Errorf("expected the surviving polarity down, got %s", dup.Existing)
		}
	})

	t.Run("no winning vote found", func(t *testing.T) {
		// A phantom duplicate with no rating on re-read must surface as
		// a plain error: no DuplicateVoteError, no duplicate sentinel,
		// so callers never render a bogus "already voted".
		err := l.duplicateVoteOutcome(ctx, trackID, "phantom")
		if err == nil {
			t.Fatal("expected an error for a missing winning vote")
		}
		var dup *DuplicateVoteError
		if errors.As(err, &dup) {
			t.Errorf("must not report a duplicate without a rating, got %v", err)
		}
		if errors.Is(err, store.ErrDuplicateRating) {
			t.Errorf("must not carry the duplicate sentinel, got %v", err)
		}
	})
}

func TestCastVoteAggregates(t *testing.T) {
	l, trackID := createTestLedger(t)
	ctx := context.Background()

	var counts store.RatingCounts
	var err error
	for i := 0; i < 4; i++ {
		counts, err = l.CastVote(ctx, trackID, fmt.Sprintf("up-%d", i), 1)
		if err != nil {
			t.Fatalf("CastVote up-%d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		counts, err = l.CastVote(ctx, trackID, fmt.Sprintf("down-%d", i), -1)
		if err != nil {
			t.Fatalf("CastVote down-%d: %v", i, err)
		}
	}

	if counts.ThumbsUp != 4 || counts.ThumbsDown != 3 {
		t.Errorf("expected (4, 3), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
	}
}

func TestVoteStatus(t *testing.T) {
	l, trackID := createTestLedger(t)
	ctx := context.Background()

	t.Run("empty listener rejected", func(t *testing.T) {
		if _, err := l.VoteStatus(ctx, trackID, ""); !errors.Is(err, ErrInvalidListener) {
			t.Fatalf("expected ErrInvalidListener, got %v", err)
		}
	})

	t.Run("not voted", func(t *testing.T) {
		status, err := l.VoteStatus(ctx, trackID, "u1")
		if err != nil {
			t.Fatalf("VoteStatus: %v", err)
		}
		if status.HasVoted {
			t.Error("expected HasVoted=false")
		}
	})

	t.Run("nonexistent track reads as not voted", func(t *testing.T) {
		status, err := l.VoteStatus(ctx, 9999, "u1")
		if err != nil {
			t.Fatalf("VoteStatus: %v", err)
		}
		if status.HasVoted {
			t.Error("expected HasVoted=false for unknown track")
		}
	})

	t.Run("voted", func(t *testing.T) {
		if _, err := l.CastVote(ctx, trackID, "u1", -1); err != nil {
			t.Fatalf("CastVote: %v", err)
		}
		status, err := l.VoteStatus(ctx, trackID, "u1")
		if err != nil {
			t.Fatalf("VoteStatus: %v", err)
		}
		if !status.HasVoted || status.Polarity != store.PolarityDown {
			t.Errorf("expected down vote, got %+v", status)
		}
	})
}

func TestCountsForUnratedTrack(t *testing.T) {
	l, trackID := createTestLedger(t)

	counts, err := l.Counts(context.Background(), trackID)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.ThumbsUp != 0 || counts.ThumbsDown != 0 {
		t.Errorf("expected (0, 0), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
	}
}
