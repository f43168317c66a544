package artwork

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrInvalidID is returned for art ids that are not ones the Store issues.
var ErrInvalidID = errors.New("invalid album art id")

const idLength = 32

// Store keeps album art files under one directory, named by a stable hash
// of the album artist and album name.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the art files.
func (s *Store) Dir() string { return s.dir }

// ID derives the art id for an album.
func ID(artist, album string) string {
	sum := blake2b.Sum256([]byte(artist + "-" + album))
	return hex.EncodeToString(sum[:])[:idLength]
}

// Save writes data for the album unless a file is already present and
// returns the art id. The write goes through a temp file so readers never
// see a partial image.
func (s *Store) Save(artist, album string, data []byte) (string, error) {
	id := ID(artist, album)
	path := filepath.Join(s.dir, id)

	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create album art directory: %w", err)
	}

	tmp := filepath.Join(s.dir, "."+id+"."+uuid.NewString()+".part")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write album art: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to publish album art: %w", err)
	}
	return id, nil
}

// Path resolves an art id to its file, rejecting anything that is not a
// well-formed id so request input can't escape the directory.
func (s *Store) Path(id string) (string, error) {
	if len(id) != idLength {
		return "", ErrInvalidID
	}
	if _, err := hex.DecodeString(id); err != nil {
		return "", ErrInvalidID
	}
	return filepath.Join(s.dir, id), nil
}

// MimeType guesses the image MIME type from its magic bytes.
func MimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	if data[0] == 0xFF && data[1] == 0xD8 {
		return "image/jpeg"
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 {
		return "image/gif"
	}

	return "application/octet-stream"
}
