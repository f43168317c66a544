package artwork

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"legato/internal/cache"
)

// Query identifies the album whose art is wanted. Dir is the directory of
// a track on the album.
type Query struct {
	Artist string
	Album  string
	Dir    string
}

// AlbumArtProvider finds art for an album without embedded pictures. A nil
// slice with a nil error means nothing was found.
type AlbumArtProvider interface {
	AlbumArt(ctx context.Context, q Query) ([]byte, error)
}

// ArtistPictureProvider returns a picture reference for an artist, typically
// from a remote metadata service. An empty string means no picture.
type ArtistPictureProvider interface {
	ArtistPicture(ctx context.Context, name string) (string, error)
}

// DefaultCoverNames are the file names checked next to a track.
var DefaultCoverNames = []string{
	"cover.jpg", "cover.jpeg", "cover.png",
	"folder.jpg", "folder.jpeg", "folder.png",
	"front.jpg", "front.png",
}

// CoverFileProvider looks for a cover image in the track's directory.
type CoverFileProvider struct {
	Names []string
}

// AlbumArt returns the first matching cover file in q.Dir.
func (p CoverFileProvider) AlbumArt(_ context.Context, q Query) ([]byte, error) {
	if q.Dir == "" {
		return nil, nil
	}
	names := p.Names
	if len(names) == 0 {
		names = DefaultCoverNames
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(q.Dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, nil
}

// CachedProvider memoizes another provider's answers, including misses,
// so a directory of tracks is only probed once per TTL.
type CachedProvider struct {
	next  AlbumArtProvider
	cache *cache.MemoryCache[Query, []byte]
}

// NewCachedProvider wraps next with a TTL cache.
func NewCachedProvider(next AlbumArtProvider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: cache.NewMemoryCache[Query, []byte](ttl),
	}
}

// AlbumArt serves from cache or asks the wrapped provider. Errors are not cached.
func (p *CachedProvider) AlbumArt(ctx context.Context, q Query) ([]byte, error) {
	if data, ok := p.cache.Get(q); ok {
		return data, nil
	}
	data, err := p.next.AlbumArt(ctx, q)
	if err != nil {
		return nil, err
	}
	p.cache.Set(q, data)
	return data, nil
}

// Close stops the cache janitor.
func (p *CachedProvider) Close() {
	p.cache.Close()
}
