package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/calicofm/spinlog/internal/config"
	"github.com/calicofm/spinlog/internal/rating"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	voteTrackID int64
	voteUp      bool
	voteDown    bool
)

// voteCmd represents the vote command
var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Cast a thumbs up/down vote on a track",
	Long: `Cast a vote on a track as this machine's listener identity.

The listener identity is an opaque random id generated on first use and
stored in ~/.config/spinlog/listener_id. One vote per track: a second
vote on the same track is rejected and the original vote reported.`,
	RunE: runVote,
}

func init() {
	rootCmd.AddCommand(voteCmd)

	voteCmd.Flags().Int64Var(&voteTrackID, "track", 0, "Track id to vote on (default: the current track)")
	voteCmd.Flags().BoolVar(&voteUp, "up", false, "Thumbs up")
	voteCmd.Flags().BoolVar(&voteDown, "down", false, "Thumbs down")
}

func runVote(cmd *cobra.Command, args []string) error {
	if voteUp == voteDown {
		return fmt.Errorf("specify exactly one of --up or --down")
	}
	polarity := 1
	if voteDown {
		polarity = -1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	listenerID, err := loadOrCreateListenerID()
	if err != nil {
		return fmt.Errorf("failed to establish listener identity: %w", err)
	}

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	trackID := voteTrackID
	if trackID == 0 {
		current, err := st.CurrentTrack(ctx)
		if err != nil {
			return fmt.Errorf("failed to get current track: %w", err)
		}
		if current == nil {
			return fmt.Errorf("nothing is playing; pass --track to vote on a specific track")
		}
		trackID = current.ID
	}

	counts, err := rating.New(st).CastVote(ctx, trackID, listenerID, polarity)
	if err != nil {
		var dup *rating.DuplicateVoteError
		if errors.As(err, &dup) {
			return fmt.Errorf("already voted %s on track %d", dup.Existing, trackID)
		}
		return err
	}

	fmt.Printf("track %d: %d up / %d down\n", trackID, counts.ThumbsUp, counts.ThumbsDown)
	return nil
}

// loadOrCreateListenerID returns this machine's persisted listener
// identity, generating one on first use.
func loadOrCreateListenerID() (string, error) {
	path := filepath.Join(config.GetConfigDir(), "listener_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", err
	}

	return id, nil
}
