package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func createRatedTrack(t *testing.T, s *Store) int64 {
	t.Helper()

	id, err := s.CreateTrack(context.Background(), TrackFields{Artist: "TLC", Title: "Ain't 2 Proud 2 Beg"}, true)
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}
	return id
}

func TestParsePolarity(t *testing.T) {
	if p, err := ParsePolarity(1); err != nil || p != PolarityUp {
		t.Errorf("ParsePolarity(1) = %v, %v", p, err)
	}
	if p, err := ParsePolarity(-1); err != nil || p != PolarityDown {
		t.Errorf("ParsePolarity(-1) = %v, %v", p, err)
	}
	for _, bad := range []int{0, 2, -2, 100} {
		if _, err := ParsePolarity(bad); err == nil {
			t.Errorf("ParsePolarity(%d) should fail", bad)
		}
	}
}

func TestInsertRating(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	trackID := createRatedTrack(t, s)

	if err := s.InsertRating(ctx, trackID, "listener-1", PolarityUp, time.Now()); err != nil {
		t.Fatalf("InsertRating: %v", err)
	}

	t.Run("duplicate pair rejected", func(t *testing.T) {
		err := s.InsertRating(ctx, trackID, "listener-1", PolarityDown, time.Now())
		if !errors.Is(err, ErrDuplicateRating) {
			t.Fatalf("expected ErrDuplicateRating, got %v", err)
		}
	})

	t.Run("unknown track rejected", func(t *testing.T) {
		err := s.InsertRating(ctx, 9999, "listener-1", PolarityUp, time.Now())
		if !errors.Is(err, ErrTrackMissing) {
			t.Fatalf("expected ErrTrackMissing, got %v", err)
		}
	})

	t.Run("same listener may vote on another track", func(t *testing.T) {
		other, err := s.CreateTrack(ctx, TrackFields{Artist: "Madonna", Title: "Like a Prayer"}, false)
		if err != nil {
			t.Fatalf("CreateTrack: %v", err)
		}
		if err := s.InsertRating(ctx, other, "listener-1", PolarityDown, time.Now()); err != nil {
			t.Fatalf("InsertRating: %v", err)
		}
	})
}

func TestRatingFor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	trackID := createRatedTrack(t, s)

	_, voted, err := s.RatingFor(ctx, trackID, "listener-1")
	if err != nil {
		t.Fatalf("RatingFor: %v", err)
	}
	if voted {
		t.Error("expected no vote yet")
	}

	if err := s.InsertRating(ctx, trackID, "listener-1", PolarityDown, time.Now()); err != nil {
		t.Fatalf("InsertRating: %v", err)
	}

	polarity, voted, err := s.RatingFor(ctx, trackID, "listener-1")
	if err != nil {
		t.Fatalf("RatingFor: %v", err)
	}
	if !voted || polarity != PolarityDown {
		t.Errorf("expected down vote, got voted=%v polarity=%v", voted, polarity)
	}
}

func TestCountRatings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	trackID := createRatedTrack(t, s)

	t.Run("unrated track reports zeros", func(t *testing.T) {
		counts, err := s.CountRatings(ctx, trackID)
		if err != nil {
			t.Fatalf("CountRatings: %v", err)
		}
		if counts.ThumbsUp != 0 || counts.ThumbsDown != 0 {
			t.Errorf("expected (0, 0), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
		}
	})

	t.Run("unknown track reports zeros", func(t *testing.T) {
		counts, err := s.CountRatings(ctx, 9999)
		if err != nil {
			t.Fatalf("CountRatings: %v", err)
		}
		if counts.ThumbsUp != 0 || counts.ThumbsDown != 0 {
			t.Errorf("expected (0, 0), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
		}
	})

	for i, p := range []Polarity{PolarityUp, PolarityUp, PolarityUp, PolarityDown, PolarityDown} {
		listener := string(rune('a' + i))
		if err := s.InsertRating(ctx, trackID, listener, p, time.Now()); err != nil {
			t.Fatalf("InsertRating %d: %v", i, err)
		}
	}

	counts, err := s.CountRatings(ctx, trackID)
	if err != nil {
		t.Fatalf("CountRatings: %v", err)
	}
	if counts.ThumbsUp != 3 || counts.ThumbsDown != 2 {
		t.Errorf("expected (3, 2), got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
	}
}

func TestInsertRatingAndCount(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	trackID := createRatedTrack(t, s)

	counts, err := s.InsertRatingAndCount(ctx, trackID, "listener-1", PolarityUp, time.Now())
	if err != nil {
		t.Fatalf("InsertRatingAndCount: %v", err)
	}
	if counts.ThumbsUp != 1 || counts.ThumbsDown != 0 {
		t.Errorf("counts must include the new vote, got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
	}

	t.Run("duplicate leaves counts unchanged", func(t *testing.T) {
		_, err := s.InsertRatingAndCount(ctx, trackID, "listener-1", PolarityDown, time.Now())
		if !errors.Is(err, ErrDuplicateRating) {
			t.Fatalf("expected ErrDuplicateRating, got %v", err)
		}

		counts, err := s.CountRatings(ctx, trackID)
		if err != nil {
			t.Fatalf("CountRatings: %v", err)
		}
		if counts.ThumbsUp != 1 || counts.ThumbsDown != 0 {
			t.Errorf("rejected vote must not change counts, got (%d, %d)", counts.ThumbsUp, counts.ThumbsDown)
		}
	})
}
