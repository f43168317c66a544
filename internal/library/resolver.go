package library

import (
	"context"
	"errors"
	"time"

	"legato/internal/artwork"
	"legato/internal/database"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// Catalog is the persistence the ingestion pipeline needs. Lookups take
// already-normalized keys and return database.ErrNotFound when absent;
// creates return database.ErrConflict on a uniqueness violation.
type Catalog interface {
	FindArtistByName(ctx context.Context, name string) (*models.Artist, error)
	CreateArtist(ctx context.Context, a *models.Artist) error
	FindAlbum(ctx context.Context, name string, artistID int64) (*models.Album, error)
	CreateAlbum(ctx context.Context, al *models.Album) error
	FindGenreByName(ctx context.Context, name string) (*models.Genre, error)
	CreateGenre(ctx context.Context, g *models.Genre) error
	TrackExists(ctx context.Context, filePath string) (bool, error)
	CreateTrack(ctx context.Context, t *models.Track) error
	CountTracks(ctx context.Context) (int, error)
	CountAlbums(ctx context.Context) (int, error)
	CountArtists(ctx context.Context) (int, error)
	SaveScanReport(ctx context.Context, r *models.ScanReport) error
}

// finder is the find-or-create capability shared by every entity kind.
// normalize maps raw input onto its uniqueness key; find and create work on
// the normalized key.
type finder[K any, V any] struct {
	normalize func(K) K
	find      func(context.Context, K) (V, error)
	create    func(context.Context, K) (V, error)
}

func (f finder[K, V]) resolve(ctx context.Context, key K) (V, error) {
	key = f.normalize(key)

	v, err := f.find(ctx, key)
	if err == nil || !errors.Is(err, database.ErrNotFound) {
		return v, err
	}

	v, err = f.create(ctx, key)
	if errors.Is(err, database.ErrConflict) {
		// Another writer created it between find and create.
		return f.find(ctx, key)
	}
	return v, err
}

// AlbumRequest describes the album a file belongs to.
type AlbumRequest struct {
	Name    string
	Artist  *models.Artist // primary artist
	Year    int
	Picture []byte // embedded art, if any
	Dir     string // directory of the file, for cover-file lookup
}

// Resolver maps extracted tag names onto persisted Artist, Album and Genre
// records, creating them on first sight.
type Resolver struct {
	catalog  Catalog
	art      *artwork.Store
	albumArt artwork.AlbumArtProvider
	pictures artwork.ArtistPictureProvider
	logger   *logrus.Logger
	now      func() time.Time

	artists finder[string, *models.Artist]
	albums  finder[AlbumRequest, *models.Album]
	genres  finder[string, *models.Genre]
}

// ResolverOption configures optional enrichment collaborators.
type ResolverOption func(*Resolver)

// WithAlbumArtProvider sets where album art comes from when a file has none embedded.
func WithAlbumArtProvider(p artwork.AlbumArtProvider) ResolverOption {
	return func(r *Resolver) { r.albumArt = p }
}

// WithArtistPictureProvider sets the external artist picture source.
func WithArtistPictureProvider(p artwork.ArtistPictureProvider) ResolverOption {
	return func(r *Resolver) { r.pictures = p }
}

// NewResolver creates a resolver over catalog. Album art is written to art.
func NewResolver(catalog Catalog, art *artwork.Store, logger *logrus.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog: catalog,
		art:     art,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.artists = finder[string, *models.Artist]{
		normalize: Normalize,
		find:      catalog.FindArtistByName,
		create:    r.createArtist,
	}
	r.albums = finder[AlbumRequest, *models.Album]{
		normalize: func(req AlbumRequest) AlbumRequest {
			req.Name = Normalize(req.Name)
			if req.Name == "" {
				req.Name = UnknownAlbum
			}
			return req
		},
		find: func(ctx context.Context, req AlbumRequest) (*models.Album, error) {
			return catalog.FindAlbum(ctx, req.Name, req.Artist.ID)
		},
		create: r.createAlbum,
	}
	r.genres = finder[string, *models.Genre]{
		normalize: Normalize,
		find:      catalog.FindGenreByName,
		create: func(ctx context.Context, name string) (*models.Genre, error) {
			g := &models.Genre{Name: name}
			if err := catalog.CreateGenre(ctx, g); err != nil {
				return nil, err
			}
			return g, nil
		},
	}

	return r
}

// ResolveArtists returns one artist per input name, in input order. An
// empty list resolves to the Unknown Artist sentinel so the file can still
// be registered.
func (r *Resolver) ResolveArtists(ctx context.Context, names []string) ([]*models.Artist, error) {
	var cleaned []string
	for _, name := range names {
		if Normalize(name) != "" {
			cleaned = append(cleaned, name)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{UnknownArtist}
	}

	artists := make([]*models.Artist, 0, len(cleaned))
	for _, name := range cleaned {
		artist, err := r.artists.resolve(ctx, name)
		if err != nil {
			return nil, &ResolutionError{Kind: "artist", Name: name, Err: err}
		}
		artists = append(artists, artist)
	}
	return artists, nil
}

// ResolveAlbum finds or creates the album keyed by (normalized name,
// primary artist). Existing albums are returned untouched.
func (r *Resolver) ResolveAlbum(ctx context.Context, req AlbumRequest) (*models.Album, error) {
	if req.Artist == nil {
		return nil, &ResolutionError{Kind: "album", Name: req.Name, Err: errors.New("missing primary artist")}
	}
	album, err := r.albums.resolve(ctx, req)
	if err != nil {
		return nil, &ResolutionError{Kind: "album", Name: req.Name, Err: err}
	}
	return album, nil
}

// ResolveGenre finds or creates the genre keyed by normalized name.
func (r *Resolver) ResolveGenre(ctx context.Context, name string) (*models.Genre, error) {
	genre, err := r.genres.resolve(ctx, name)
	if err != nil {
		return nil, &ResolutionError{Kind: "genre", Name: name, Err: err}
	}
	return genre, nil
}

func (r *Resolver) createArtist(ctx context.Context, name string) (*models.Artist, error) {
	artist := &models.Artist{Name: name, CreatedAt: r.now()}

	if r.pictures != nil && name != UnknownArtist {
		picture, err := r.pictures.ArtistPicture(ctx, name)
		if err != nil {
			r.logger.WithError(err).WithField("artist", name).Warn("Failed to fetch artist picture")
		} else {
			artist.Picture = picture
		}
	}

	if err := r.catalog.CreateArtist(ctx, artist); err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{"artist": name, "artist_id": artist.ID}).Debug("Created artist")
	return artist, nil
}

func (r *Resolver) createAlbum(ctx context.Context, req AlbumRequest) (*models.Album, error) {
	album := &models.Album{
		Name:      req.Name,
		ArtistID:  req.Artist.ID,
		Year:      req.Year,
		Picture:   r.albumPicture(ctx, req),
		CreatedAt: r.now(),
	}
	if err := r.catalog.CreateAlbum(ctx, album); err != nil {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{
		"album":     album.Name,
		"artist":    req.Artist.Name,
		"album_id":  album.ID,
		"has_cover": album.Picture != "",
	}).Debug("Created album")
	return album, nil
}

// albumPicture stores embedded art, or asks the provider when there is
// none. Art failures never block album creation.
func (r *Resolver) albumPicture(ctx context.Context, req AlbumRequest) string {
	if r.art == nil {
		return ""
	}

	data := req.Picture
	if len(data) == 0 && r.albumArt != nil {
		found, err := r.albumArt.AlbumArt(ctx, artwork.Query{Artist: req.Artist.Name, Album: req.Name, Dir: req.Dir})
		if err != nil {
			r.logger.WithError(err).WithField("album", req.Name).Warn("Failed to look up album art")
		}
		data = found
	}
	if len(data) == 0 {
		return ""
	}

	id, err := r.art.Save(req.Artist.Name, req.Name, data)
	if err != nil {
		r.logger.WithError(err).WithField("album", req.Name).Warn("Failed to store album art")
		return ""
	}
	return id
}
