// Package api is the thin HTTP glue over the station and the rating
// ledger: request validation and JSON marshalling live here, the core
// never sees HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/calicofm/spinlog/internal/rating"
	"github.com/calicofm/spinlog/internal/station"
	"github.com/calicofm/spinlog/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Config holds the API server's station identification, returned from
// /api/now-playing when no track has ever been promoted.
type Config struct {
	StationName    string
	StationTagline string
}

// Server wires the HTTP routes to the core.
type Server struct {
	echo    *echo.Echo
	store   *store.Store
	station *station.Station
	ledger  *rating.Ledger
	cfg     Config
	logger  zerolog.Logger
}

// New builds the router.
func New(s *store.Store, st *station.Station, ledger *rating.Ledger, cfg Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	srv := &Server{
		echo:    e,
		store:   s,
		station: st,
		ledger:  ledger,
		cfg:     cfg,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	api := e.Group("/api")
	api.GET("/health", srv.health)
	api.GET("/now-playing", srv.nowPlaying)
	api.GET("/recently-played", srv.recentlyPlayed)
	api.POST("/update-track", srv.updateTrack)
	api.POST("/tracks/:id/rate", srv.rateTrack)
	api.POST("/tracks/:id/rating-status", srv.ratingStatus)

	return srv
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP API")
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func failure(c echo.Context, code int, message string, extra map[string]any) error {
	body := map[string]any{
		"status":  "error",
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(code, body)
}

type trackJSON struct {
	ID         int64  `json:"id"`
	Artist     string `json:"artist"`
	Title      string `json:"title"`
	Album      string `json:"album"`
	Year       *int   `json:"year"`
	ArtworkURL string `json:"album_art_url"`
	PlayedAt   string `json:"played_at"`
}

func toTrackJSON(t *store.Track) trackJSON {
	return trackJSON{
		ID:         t.ID,
		Artist:     t.Artist,
		Title:      t.Title,
		Album:      t.Album,
		Year:       t.Year,
		ArtworkURL: t.ArtworkURL,
		PlayedAt:   t.PlayedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) health(c echo.Context) error {
	ctx := c.Request().Context()

	if err := s.store.Ping(ctx); err != nil {
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}
	count, err := s.store.TrackCount(ctx)
	if err != nil {
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}

	return success(c, map[string]any{"tracks": count})
}

type nowPlayingJSON struct {
	trackJSON
	ThumbsUp   int `json:"thumbs_up"`
	ThumbsDown int `json:"thumbs_down"`
}

func (s *Server) nowPlaying(c echo.Context) error {
	ctx := c.Request().Context()

	track, err := s.station.Current(ctx)
	if err != nil {
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}

	// Station identification placeholder until anything has played.
	if track == nil {
		return success(c, nowPlayingJSON{
			trackJSON: trackJSON{
				Artist: s.cfg.StationName,
				Title:  s.cfg.StationTagline,
			},
		})
	}

	counts, err := s.ledger.Counts(ctx, track.ID)
	if err != nil {
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}

	return success(c, nowPlayingJSON{
		trackJSON:  toTrackJSON(track),
		ThumbsUp:   counts.ThumbsUp,
		ThumbsDown: counts.ThumbsDown,
	})
}

func (s *Server) recentlyPlayed(c echo.Context) error {
	ctx := c.Request().Context()

	tracks, err := s.station.RecentlyPlayed(ctx, station.RecentLimit)
	if err != nil {
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}

	out := make([]trackJSON, 0, len(tracks))
	for i := range tracks {
		out = append(out, toTrackJSON(&tracks[i]))
	}

	return success(c, out)
}

type updateTrackRequest struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	Album  string `json:"album"`
	Year   *int   `json:"year"`
}

func (s *Server) updateTrack(c echo.Context) error {
	ctx := c.Request().Context()

	var req updateTrackRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid request body", nil)
	}

	info := station.TrackInfo{
		Artist: req.Artist,
		Title:  req.Title,
		Album:  req.Album,
		Year:   req.Year,
	}
	if info.Artist == "" {
		info.Artist = "Unknown Artist"
	}
	if info.Title == "" {
		info.Title = "Unknown Track"
	}
	if info.Album == "" {
		info.Album = "Live Stream"
	}

	track, err := s.station.ReportCurrent(ctx, info)
	if err != nil {
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}

	s.logger.Info().
		Str("artist", track.Artist).
		Str("title", track.Title).
		Msg("Track updated manually")

	return success(c, map[string]any{
		"artist": track.Artist,
		"title":  track.Title,
	})
}

type rateRequest struct {
	UserID     string `json:"user_id"`
	RatingType int    `json:"rating_type"` // 1 thumbs up, -1 thumbs down
}

func (s *Server) rateTrack(c echo.Context) error {
	ctx := c.Request().Context()

	trackID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return failure(c, http.StatusBadRequest, "invalid track id", nil)
	}

	var req rateRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid request body", nil)
	}

	counts, err := s.ledger.CastVote(ctx, trackID, req.UserID, req.RatingType)
	if err != nil {
		var dup *rating.DuplicateVoteError
		switch {
		case errors.Is(err, rating.ErrInvalidListener):
			return failure(c, http.StatusBadRequest, "user_id is required", nil)
		case errors.Is(err, rating.ErrInvalidPolarity):
			return failure(c, http.StatusBadRequest, "rating_type must be 1 (thumbs up) or -1 (thumbs down)", nil)
		case errors.Is(err, rating.ErrTrackNotFound):
			return failure(c, http.StatusNotFound, "Track not found", nil)
		case errors.As(err, &dup):
			return failure(c, http.StatusConflict, "You have already rated this track", map[string]any{
				"existing_rating": int(dup.Existing),
			})
		default:
			return failure(c, http.StatusInternalServerError, err.Error(), nil)
		}
	}

	return success(c, map[string]any{
		"thumbs_up":   counts.ThumbsUp,
		"thumbs_down": counts.ThumbsDown,
	})
}

type ratingStatusRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) ratingStatus(c echo.Context) error {
	ctx := c.Request().Context()

	trackID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return failure(c, http.StatusBadRequest, "invalid track id", nil)
	}

	var req ratingStatusRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "invalid request body", nil)
	}

	status, err := s.ledger.VoteStatus(ctx, trackID, req.UserID)
	if err != nil {
		if errors.Is(err, rating.ErrInvalidListener) {
			return failure(c, http.StatusBadRequest, "user_id is required", nil)
		}
		return failure(c, http.StatusInternalServerError, err.Error(), nil)
	}

	body := map[string]any{"has_rated": status.HasVoted}
	if status.HasVoted {
		body["rating_type"] = int(status.Polarity)
	} else {
		body["rating_type"] = nil
	}

	return success(c, body)
}
