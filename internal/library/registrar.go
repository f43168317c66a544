package library

import (
	"context"
	"errors"
	"strings"
	"time"

	"legato/internal/database"
	"legato/internal/metadata"
	"legato/pkg/models"
)

// Registrar creates Track records. It is create-only: an existing track is
// never modified by ingestion.
type Registrar struct {
	catalog Catalog
	now     func() time.Time
}

// NewRegistrar creates a registrar over catalog.
func NewRegistrar(catalog Catalog) *Registrar {
	return &Registrar{catalog: catalog, now: time.Now}
}

// Known reports whether a track is already registered for path.
func (r *Registrar) Known(ctx context.Context, path string) (bool, error) {
	exists, err := r.catalog.TrackExists(ctx, path)
	if err != nil {
		return false, &ResolutionError{Kind: "track", Name: path, Err: err}
	}
	return exists, nil
}

// Register creates the track for path once. If the path is already known it
// returns ErrAlreadyRegistered and changes nothing.
func (r *Registrar) Register(ctx context.Context, path string, tags *metadata.Tags, artists []*models.Artist, album *models.Album, genre *models.Genre) (*models.Track, error) {
	known, err := r.Known(ctx, path)
	if err != nil {
		return nil, err
	}
	if known {
		return nil, ErrAlreadyRegistered
	}

	names := make([]string, 0, len(artists))
	ids := make([]int64, 0, len(artists))
	seen := make(map[int64]bool, len(artists))
	for _, a := range artists {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		names = append(names, a.Name)
		ids = append(ids, a.ID)
	}

	now := r.now()
	track := &models.Track{
		Title:     Normalize(tags.Title),
		Artist:    strings.Join(names, ", "),
		ArtistIDs: ids,
		AlbumID:   album.ID,
		Number:    tags.TrackNumber,
		Duration:  tags.Duration,
		Lossless:  tags.Lossless,
		Year:      tags.Year,
		FilePath:  path,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if genre != nil {
		id := genre.ID
		track.GenreID = &id
	}

	if err := r.catalog.CreateTrack(ctx, track); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, ErrAlreadyRegistered
		}
		return nil, &ResolutionError{Kind: "track", Name: path, Err: err}
	}
	return track, nil
}
