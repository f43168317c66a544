package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"legato/pkg/models"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict = errors.New("unique constraint violation")
)

// Database wraps a *sql.DB providing the catalog operations used by the
// ingestion pipeline and the HTTP layer. It is safe for concurrent use
// because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. Caller should Close() it
// when finished.
func NewDatabase(dbPath string, maxConns int, logger *logrus.Logger) (*Database, error) {
	// foreign_keys and busy_timeout are per-connection, so they go in the DSN
	dsn := dbPath + "?mode=rwc&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns < 1 {
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	tables := []string{`
	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		picture TEXT,
		created_at DATETIME NOT NULL
	);`, `
	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		artist_id INTEGER NOT NULL REFERENCES artists(id),
		year INTEGER DEFAULT 0,
		picture TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (name, artist_id)
	);`, `
	CREATE TABLE IF NOT EXISTS genres (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`, `
	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		artist TEXT NOT NULL,
		album_id INTEGER NOT NULL REFERENCES albums(id),
		genre_id INTEGER REFERENCES genres(id),
		number INTEGER DEFAULT 1,
		duration INTEGER DEFAULT 0,
		lossless BOOLEAN DEFAULT FALSE,
		year INTEGER DEFAULT 0,
		file_path TEXT NOT NULL UNIQUE,
		plays INTEGER DEFAULT 0,
		last_play DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`, `
	CREATE TABLE IF NOT EXISTS track_artists (
		track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
		artist_id INTEGER NOT NULL REFERENCES artists(id),
		position INTEGER NOT NULL,
		PRIMARY KEY (track_id, artist_id)
	);`, `
	CREATE TABLE IF NOT EXISTS scan_reports (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		run_id TEXT,
		start_at DATETIME,
		end_at DATETIME,
		seconds REAL,
		tracks INTEGER,
		albums INTEGER,
		artists INTEGER,
		added INTEGER,
		skipped INTEGER,
		failed INTEGER,
		size INTEGER,
		mount TEXT,
		last_scan DATETIME
	);`}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id, number);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_created ON tracks(created_at);",
		"CREATE INDEX IF NOT EXISTS idx_track_artists_artist ON track_artists(artist_id);",
	}

	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}
	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}
	return nil
}

// mapError converts driver errors into the package sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// FindArtistByName returns the artist stored under an already-normalized name.
func (db *Database) FindArtistByName(ctx context.Context, name string) (*models.Artist, error) {
	var a models.Artist
	var picture sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, name, picture, created_at FROM artists WHERE name = ?", name).
		Scan(&a.ID, &a.Name, &picture, &a.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	a.Picture = picture.String
	return &a, nil
}

// CreateArtist inserts the artist and fills in its ID.
func (db *Database) CreateArtist(ctx context.Context, a *models.Artist) error {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO artists (name, picture, created_at) VALUES (?, ?, ?)",
		a.Name, nullString(a.Picture), a.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

// FindAlbum returns the album with the given normalized name and primary artist.
func (db *Database) FindAlbum(ctx context.Context, name string, artistID int64) (*models.Album, error) {
	var al models.Album
	var picture sql.NullString
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, name, artist_id, year, picture, created_at FROM albums WHERE name = ? AND artist_id = ?",
		name, artistID).
		Scan(&al.ID, &al.Name, &al.ArtistID, &al.Year, &picture, &al.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	al.Picture = picture.String
	return &al, nil
}

// CreateAlbum inserts the album and fills in its ID.
func (db *Database) CreateAlbum(ctx context.Context, al *models.Album) error {
	res, err := db.conn.ExecContext(ctx,
		"INSERT INTO albums (name, artist_id, year, picture, created_at) VALUES (?, ?, ?, ?, ?)",
		al.Name, al.ArtistID, al.Year, nullString(al.Picture), al.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	al.ID, err = res.LastInsertId()
	return err
}

// FindGenreByName returns the genre stored under an already-normalized name.
func (db *Database) FindGenreByName(ctx context.Context, name string) (*models.Genre, error) {
	var g models.Genre
	err := db.conn.QueryRowContext(ctx, "SELECT id, name FROM genres WHERE name = ?", name).
		Scan(&g.ID, &g.Name)
	if err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

// CreateGenre inserts the genre and fills in its ID.
func (db *Database) CreateGenre(ctx context.Context, g *models.Genre) error {
	res, err := db.conn.ExecContext(ctx, "INSERT INTO genres (name) VALUES (?)", g.Name)
	if err != nil {
		return mapError(err)
	}
	g.ID, err = res.LastInsertId()
	return err
}

// TrackExists returns true if a track exists with the given file path.
func (db *Database) TrackExists(ctx context.Context, filePath string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks WHERE file_path = ?", filePath).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateTrack inserts the track row and its ordered artist references in a
// single transaction, so a failure never leaves a track without artists.
func (db *Database) CreateTrack(ctx context.Context, t *models.Track) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin track transaction: %w", err)
	}
	defer tx.Rollback()

	var genreID sql.NullInt64
	if t.GenreID != nil {
		genreID = sql.NullInt64{Int64: *t.GenreID, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tracks (title, artist, album_id, genre_id, number, duration, lossless, year, file_path, plays, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		t.Title, t.Artist, t.AlbumID, genreID, t.Number, t.Duration, t.Lossless, t.Year,
		t.FilePath, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	seen := make(map[int64]bool, len(t.ArtistIDs))
	position := 0
	for _, artistID := range t.ArtistIDs {
		if seen[artistID] {
			continue
		}
		seen[artistID] = true
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO track_artists (track_id, artist_id, position) VALUES (?, ?, ?)",
			id, artistID, position); err != nil {
			return mapError(err)
		}
		position++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track: %w", err)
	}
	t.ID = id
	return nil
}

const trackColumns = `id, title, artist, album_id, genre_id, number, duration, lossless, year, file_path, plays, last_play, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*models.Track, error) {
	var t models.Track
	var genreID sql.NullInt64
	var lastPlay sql.NullTime
	err := row.Scan(&t.ID, &t.Title, &t.Artist, &t.AlbumID, &genreID, &t.Number, &t.Duration,
		&t.Lossless, &t.Year, &t.FilePath, &t.Plays, &lastPlay, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if genreID.Valid {
		id := genreID.Int64
		t.GenreID = &id
	}
	if lastPlay.Valid {
		lp := lastPlay.Time
		t.LastPlay = &lp
	}
	return &t, nil
}

// loadArtistIDs fills in the ordered artist references of a track.
func (db *Database) loadArtistIDs(ctx context.Context, t *models.Track) error {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT artist_id FROM track_artists WHERE track_id = ? ORDER BY position", t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	t.ArtistIDs = t.ArtistIDs[:0]
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		t.ArtistIDs = append(t.ArtistIDs, id)
	}
	return rows.Err()
}

// GetTrackByID returns a single track by its ID.
func (db *Database) GetTrackByID(ctx context.Context, id int64) (*models.Track, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE id = ?", id)
	t, err := scanTrack(row)
	if err != nil {
		return nil, mapError(err)
	}
	if err := db.loadArtistIDs(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTrackByPath returns the track registered for a file path.
func (db *Database) GetTrackByPath(ctx context.Context, filePath string) (*models.Track, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+trackColumns+" FROM tracks WHERE file_path = ?", filePath)
	t, err := scanTrack(row)
	if err != nil {
		return nil, mapError(err)
	}
	if err := db.loadArtistIDs(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTracks returns tracks newest first.
func (db *Database) ListTracks(ctx context.Context, skip, limit int) ([]models.Track, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+trackColumns+" FROM tracks ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tracks {
		if err := db.loadArtistIDs(ctx, &tracks[i]); err != nil {
			return nil, err
		}
	}
	return tracks, nil
}

// RemoveTrackByPath deletes the track row (and its artist refs) identified
// by its file path. It reports whether a row was removed.
func (db *Database) RemoveTrackByPath(ctx context.Context, filePath string) (bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM track_artists WHERE track_id IN (SELECT id FROM tracks WHERE file_path = ?)", filePath); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM tracks WHERE file_path = ?", filePath)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

// RecordPlay bumps the play counter and last-play time of a track.
func (db *Database) RecordPlay(ctx context.Context, id int64, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE tracks SET plays = plays + 1, last_play = ?, updated_at = ? WHERE id = ?", at, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *Database) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// CountTracks returns the number of tracks in the catalog.
func (db *Database) CountTracks(ctx context.Context) (int, error) { return db.count(ctx, "tracks") }

// CountAlbums returns the number of albums in the catalog.
func (db *Database) CountAlbums(ctx context.Context) (int, error) { return db.count(ctx, "albums") }

// CountArtists returns the number of artists in the catalog.
func (db *Database) CountArtists(ctx context.Context) (int, error) { return db.count(ctx, "artists") }

// SaveScanReport overwrites the single latest-report slot.
func (db *Database) SaveScanReport(ctx context.Context, r *models.ScanReport) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO scan_reports (id, run_id, start_at, end_at, seconds, tracks, albums, artists, added, skipped, failed, size, mount, last_scan)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			seconds = excluded.seconds,
			tracks = excluded.tracks,
			albums = excluded.albums,
			artists = excluded.artists,
			added = excluded.added,
			skipped = excluded.skipped,
			failed = excluded.failed,
			size = excluded.size,
			mount = excluded.mount,
			last_scan = excluded.last_scan`,
		r.RunID, r.Start, r.End, r.Seconds, r.Tracks, r.Albums, r.Artists,
		r.Added, r.Skipped, r.Failed, r.Size, r.Mount, r.LastScan)
	if err != nil {
		return fmt.Errorf("failed to save scan report: %w", err)
	}
	return nil
}

// LatestScanReport returns the report written by the most recent build.
func (db *Database) LatestScanReport(ctx context.Context) (*models.ScanReport, error) {
	var r models.ScanReport
	err := db.conn.QueryRowContext(ctx, `
		SELECT run_id, start_at, end_at, seconds, tracks, albums, artists, added, skipped, failed, size, mount, last_scan
		FROM scan_reports WHERE id = 1`).
		Scan(&r.RunID, &r.Start, &r.End, &r.Seconds, &r.Tracks, &r.Albums, &r.Artists,
			&r.Added, &r.Skipped, &r.Failed, &r.Size, &r.Mount, &r.LastScan)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

// Ping checks connectivity for the health endpoint.
func (db *Database) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *Database) Close() error {
	return db.conn.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
