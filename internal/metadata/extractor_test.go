package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"legato/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// id3File builds a minimal ID3v2.3 tagged file followed by filler bytes.
func id3File(t *testing.T, dir, name string, frames map[string]string) string {
	t.Helper()

	var body bytes.Buffer
	for _, id := range []string{"TIT2", "TPE1", "TPE2", "TALB", "TCON", "TYER", "TRCK"} {
		value, ok := frames[id]
		if !ok {
			continue
		}
		content := append([]byte{0x00}, []byte(value)...) // ISO-8859-1
		body.WriteString(id)
		size := make([]byte, 4)
		binary.BigEndian.PutUint32(size, uint32(len(content)))
		body.Write(size)
		body.Write([]byte{0x00, 0x00})
		body.Write(content)
	}

	n := body.Len()
	header := []byte{'I', 'D', '3', 0x03, 0x00, 0x00,
		byte(n >> 21 & 0x7f), byte(n >> 14 & 0x7f), byte(n >> 7 & 0x7f), byte(n & 0x7f)}

	var file bytes.Buffer
	file.Write(header)
	file.Write(body.Bytes())
	file.Write(make([]byte, 512))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0644))
	return path
}

func TestExtract(t *testing.T) {
	extractor := NewExtractor([]string{".mp3", ".flac", ".m4a"}, logging.Discard())
	dir := t.TempDir()

	t.Run("TaggedFile", func(t *testing.T) {
		path := id3File(t, dir, "tagged.mp3", map[string]string{
			"TIT2": "Around The World",
			"TPE1": "Daft Punk & Romanthony, Someone",
			"TALB": "Homework",
			"TCON": "House",
			"TYER": "1997",
			"TRCK": "7/16",
		})

		tags, err := extractor.Extract(path)
		require.NoError(t, err)

		assert.Equal(t, "Around The World", tags.Title)
		assert.Equal(t, []string{"Daft Punk", "Romanthony", "Someone"}, tags.Artists)
		assert.Equal(t, "Homework", tags.Album)
		assert.Equal(t, "House", tags.Genre)
		assert.Equal(t, 1997, tags.Year)
		assert.Equal(t, 7, tags.TrackNumber)
		assert.False(t, tags.Lossless)
		assert.NotZero(t, tags.Size)
	})

	t.Run("Defaults", func(t *testing.T) {
		path := id3File(t, dir, "sparse.mp3", map[string]string{
			"TALB": "Only Album",
		})

		tags, err := extractor.Extract(path)
		require.NoError(t, err)

		assert.Equal(t, "", tags.Title)
		assert.Empty(t, tags.Artists)
		assert.Equal(t, 0, tags.Year)
		assert.Equal(t, 1, tags.TrackNumber)
		assert.False(t, tags.Lossless)
	})

	t.Run("AlbumArtistFallback", func(t *testing.T) {
		path := id3File(t, dir, "albumartist.mp3", map[string]string{
			"TIT2": "Intro",
			"TPE2": "Various & Friends",
		})

		tags, err := extractor.Extract(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Various", "Friends"}, tags.Artists)
	})

	t.Run("UntaggedFile", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.mp3")
		require.NoError(t, os.WriteFile(path, []byte("this is not an audio file"), 0644))

		_, err := extractor.Extract(path)
		require.Error(t, err)

		var extractionErr *ExtractionError
		require.True(t, errors.As(err, &extractionErr))
		assert.Equal(t, path, extractionErr.Path)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := extractor.Extract(filepath.Join(dir, "missing.mp3"))

		var extractionErr *ExtractionError
		assert.True(t, errors.As(err, &extractionErr))
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})
}

func TestSplitArtists(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"single", []string{"Adele"}, []string{"Adele"}},
		{"mixed delimiters", []string{"A & B, C"}, []string{"A", "B", "C"}},
		{"list input", []string{"A, B", "C&D"}, []string{"A", "B", "C", "D"}},
		{"empty tokens dropped", []string{" , & ,A,,"}, []string{"A"}},
		{"nul separated", []string{"A\x00B"}, []string{"A", "B"}},
		{"empty", []string{""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitArtists(tt.values...))
		})
	}
}

func TestIsAudioFile(t *testing.T) {
	extractor := NewExtractor([]string{".mp3", ".FLAC", ".m4a"}, logging.Discard())

	testCases := []struct {
		filename string
		expected bool
	}{
		{"song.mp3", true},
		{"song.MP3", true},
		{"song.flac", true},
		{"song.m4a", true},
		{"song.wav", false},
		{"song.txt", false},
		{"song", false},
		{"", false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, extractor.IsAudioFile(tc.filename), tc.filename)
	}
}

func TestReadMVHD(t *testing.T) {
	// version 0: flags, creation, modification, timescale=1000, duration=65500
	body := []byte{0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	ts := make([]byte, 4)
	binary.BigEndian.PutUint32(ts, 1000)
	dur := make([]byte, 4)
	binary.BigEndian.PutUint32(dur, 65500)
	body = append(body, ts...)
	body = append(body, dur...)

	secs, err := readMVHD(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 66, secs)
}
