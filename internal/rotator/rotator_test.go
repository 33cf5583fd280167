package rotator

import (
	"context"
	"testing"

	"github.com/calicofm/spinlog/internal/station"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/rs/zerolog"
)

func createTestRotator(t *testing.T) (*Rotator, *station.Station) {
	t.Helper()

	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	st := station.New(s)
	return New(st, DefaultInterval, "", zerolog.Nop()), st
}

func TestRotateSetsCurrent(t *testing.T) {
	r, st := createTestRotator(t)
	ctx := context.Background()

	if err := r.Rotate(ctx); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	current, err := st.Current(ctx)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if current == nil {
		t.Fatal("expected a current track after rotation")
	}
}

func TestRotateNeverRepeatsBackToBack(t *testing.T) {
	r, st := createTestRotator(t)
	ctx := context.Background()

	var prevArtist, prevTitle string
	for i := 0; i < 30; i++ {
		if err := r.Rotate(ctx); err != nil {
			t.Fatalf("Rotate %d: %v", i, err)
		}

		current, err := st.Current(ctx)
		if err != nil {
			t.Fatalf("Current: %v", err)
		}
		if current == nil {
			t.Fatal("no current track after rotation")
		}
		if current.Artist == prevArtist && current.Title == prevTitle {
			t.Fatalf("rotation %d repeated %s - %s", i, prevArtist, prevTitle)
		}
		prevArtist, prevTitle = current.Artist, current.Title
	}
}
