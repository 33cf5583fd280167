package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store is the persistence gateway for tracks and ratings, backed by SQLite.
type Store struct {
	db *sql.DB
}

// Track is a row in the tracks table.
type Track struct {
	ID         int64
	Artist     string
	Title      string
	Album      string
	Year       *int
	ArtworkURL string
	PlayedAt   time.Time
	IsCurrent  bool
}

// TrackFields holds the mutable descriptive fields of a track.
type TrackFields struct {
	Artist     string
	Title      string
	Album      string
	Year       *int
	ArtworkURL string
}

// New opens (or creates) the database at dbPath and ensures the schema exists.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool size to 1 for in-memory databases to ensure consistency
	// For file-based databases, this still works well for our use case
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",    // Enforce foreign key constraints
		"PRAGMA busy_timeout = 10000", // Wait up to 10 seconds on lock
		"PRAGMA synchronous = NORMAL", // Balance between safety and performance
		"PRAGMA journal_mode = WAL",   // Write-Ahead Logging for concurrent access
		"PRAGMA temp_store = MEMORY",  // Use memory for temp tables
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			artist TEXT NOT NULL,
			title TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			year INTEGER,
			artwork_url TEXT NOT NULL DEFAULT '',
			played_at INTEGER NOT NULL,
			is_current BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (artist, title)
		);

		CREATE TABLE IF NOT EXISTS ratings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			listener_id TEXT NOT NULL,
			polarity INTEGER NOT NULL CHECK (polarity IN (1, -1)),
			created_at INTEGER NOT NULL,
			UNIQUE (track_id, listener_id)
		);

		CREATE INDEX IF NOT EXISTS idx_tracks_played ON tracks(is_current, played_at);
		CREATE INDEX IF NOT EXISTS idx_ratings_track ON ratings(track_id);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const trackColumns = "id, artist, title, album, year, artwork_url, played_at, is_current"

func scanTrack(row interface{ Scan(...any) error }) (*Track, error) {
	var t Track
	var playedAt int64
	var year sql.NullInt64

	err := row.Scan(&t.ID, &t.Artist, &t.Title, &t.Album, &year, &t.ArtworkURL, &playedAt, &t.IsCurrent)
	if err != nil {
		return nil, err
	}

	if year.Valid {
		y := int(year.Int64)
		t.Year = &y
	}
	t.PlayedAt = time.Unix(playedAt, 0)

	return &t, nil
}

func nullYear(year *int) sql.NullInt64 {
	if year == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*year), Valid: true}
}

// FindTrackByArtistTitle looks up a track by its (artist, title) natural key.
// The match is exact and case-sensitive; empty strings are valid keys.
// Returns nil with no error when no track matches.
func (s *Store) FindTrackByArtistTitle(ctx context.Context, artist, title string) (*Track, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracks
		WHERE artist = ? AND title = ?
		ORDER BY played_at DESC, id DESC
		LIMIT 1
	`, trackColumns)

	track, err := scanTrack(s.db.QueryRowContext(ctx, query, artist, title))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find track: %w", err)
	}

	return track, nil
}

// GetTrack returns the track with the given id, or nil when absent.
func (s *Store) GetTrack(ctx context.Context, id int64) (*Track, error) {
	query := fmt.Sprintf("SELECT %s FROM tracks WHERE id = ?", trackColumns)

	track, err := scanTrack(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}

	return track, nil
}

// findTrackIDTx looks up a track id by its natural key inside tx.
func findTrackIDTx(ctx context.Context, tx *sql.Tx, artist, title string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM tracks
		WHERE artist = ? AND title = ?
		ORDER BY played_at DESC, id DESC
		LIMIT 1
	`, artist, title).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find track: %w", err)
	}
	return id, true, nil
}

func clearCurrentTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, "UPDATE tracks SET is_current = 0 WHERE is_current = 1"); err != nil {
		return fmt.Errorf("failed to clear current flags: %w", err)
	}
	return nil
}

func insertTrackTx(ctx context.Context, tx *sql.Tx, fields TrackFields, current bool, playedAt int64) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO tracks (artist, title, album, year, artwork_url, played_at, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fields.Artist, fields.Title, fields.Album, nullYear(fields.Year), fields.ArtworkURL, playedAt, current)
	if err != nil {
		return 0, fmt.Errorf("failed to insert track: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}

	return id, nil
}

// promoteTrackTx clears every current flag, sets it on id, refreshes
// played_at, and applies the freshest descriptive fields, all inside tx.
func promoteTrackTx(ctx context.Context, tx *sql.Tx, id int64, fields TrackFields, playedAt int64) error {
	if err := clearCurrentTx(ctx, tx); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE tracks
		SET is_current = 1, played_at = ?, album = ?, year = ?, artwork_url = ?
		WHERE id = ?
	`, playedAt, fields.Album, nullYear(fields.Year), fields.ArtworkURL, id)
	if err != nil {
		return fmt.Errorf("failed to promote track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("track with id %d not found", id)
	}

	return nil
}

// CreateTrack inserts a new track. When current is true the insert runs
// inside a transaction that first clears every other track's current flag,
// so the one-current invariant holds even for first sightings.
func (s *Store) CreateTrack(ctx context.Context, fields TrackFields, current bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if current {
		if err := clearCurrentTx(ctx, tx); err != nil {
			return 0, err
		}
	}

	id, err := insertTrackTx(ctx, tx, fields, current, time.Now().Unix())
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// PromoteTrack makes the track with the given id the single current track.
// Clearing the old flag, setting the new one, refreshing played_at, and
// applying the freshest descriptive fields happen in one transaction so the
// system never observably has zero current tracks once one was promoted.
func (s *Store) PromoteTrack(ctx context.Context, id int64, fields TrackFields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := promoteTrackTx(ctx, tx, id, fields, time.Now().Unix()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ApplyAnnouncement applies one feed announcement as a single atomic batch:
// the announced track is promoted (created current when unseen) and every
// previous entry unknown to the store is inserted as non-current history.
// A failure anywhere rolls the whole announcement back, so a failed cycle
// alters no state. Returns the current track's id.
func (s *Store) ApplyAnnouncement(ctx context.Context, current TrackFields, previous []TrackFields) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()

	id, found, err := findTrackIDTx(ctx, tx, current.Artist, current.Title)
	if err != nil {
		return 0, err
	}
	if found {
		if err := promoteTrackTx(ctx, tx, id, current, now); err != nil {
			return 0, err
		}
	} else {
		if err := clearCurrentTx(ctx, tx); err != nil {
			return 0, err
		}
		id, err = insertTrackTx(ctx, tx, current, true, now)
		if err != nil {
			return 0, err
		}
	}

	for _, prev := range previous {
		_, known, err := findTrackIDTx(ctx, tx, prev.Artist, prev.Title)
		if err != nil {
			return 0, err
		}
		if known {
			continue
		}
		if _, err := insertTrackTx(ctx, tx, prev, false, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// CurrentTrack returns the single current track, or nil when no track has
// ever been promoted.
func (s *Store) CurrentTrack(ctx context.Context) (*Track, error) {
	query := fmt.Sprintf("SELECT %s FROM tracks WHERE is_current = 1 LIMIT 1", trackColumns)

	track, err := scanTrack(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current track: %w", err)
	}

	return track, nil
}

// ListRecentlyPlayed returns non-current tracks ordered by last played
// descending. Timestamp ties break on higher id first for determinism.
func (s *Store) ListRecentlyPlayed(ctx context.Context, limit int) ([]Track, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tracks
		WHERE is_current = 0
		ORDER BY played_at DESC, id DESC
		LIMIT ?
	`, trackColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recently played: %w", err)
	}
	defer rows.Close()

	var tracks []Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, *track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}

	return tracks, nil
}

// TrackCount returns the total number of tracks.
func (s *Store) TrackCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// sqliteConstraintCode extracts the SQLite result code from err, or 0
// when err is not a driver error. The driver reports extended result
// codes where it has them and the primary SQLITE_CONSTRAINT otherwise,
// so callers must accept both.
func sqliteConstraintCode(err error) int {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return 0
	}
	return serr.Code()
}

func isUniqueViolation(err error) bool {
	switch sqliteConstraintCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	default:
		return false
	}
}

func isForeignKeyViolation(err error) bool {
	switch sqliteConstraintCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "FOREIGN KEY")
	default:
		return false
	}
}
