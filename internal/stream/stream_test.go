package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   Range
		parse  bool // expect RangeParseError
		unsat  bool // expect ErrUnsatisfiable
	}{
		{name: "explicit", header: "bytes=0-99", want: Range{0, 99}},
		{name: "open end", header: "bytes=500-", want: Range{500, 999}},
		{name: "end clamped", header: "bytes=900-5000", want: Range{900, 999}},
		{name: "suffix", header: "bytes=-100", want: Range{900, 999}},
		{name: "suffix larger than file", header: "bytes=-5000", want: Range{0, 999}},
		{name: "single byte", header: "bytes=999-999", want: Range{999, 999}},
		{name: "start past end", header: "bytes=1000-", unsat: true},
		{name: "wrong unit", header: "items=0-1", parse: true},
		{name: "no dash", header: "bytes=100", parse: true},
		{name: "garbage", header: "bytes=abc-def", parse: true},
		{name: "reversed", header: "bytes=50-10", parse: true},
		{name: "multiple", header: "bytes=0-1,5-6", parse: true},
		{name: "negative start", header: "bytes=--5", parse: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, 1000)
			switch {
			case tt.parse:
				var parseErr *RangeParseError
				assert.True(t, errors.As(err, &parseErr), "got %v", err)
			case tt.unsat:
				assert.ErrorIs(t, err, ErrUnsatisfiable)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func serve(t *testing.T, path, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, ServeFile(rec, req, path))
	return rec
}

func TestServeFilePartial(t *testing.T) {
	path, data := testFile(t, "song.mp3", 1000)

	rec := serve(t, path, "bytes=0-99")

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, data[:100], rec.Body.Bytes())
}

func TestServeFileFull(t *testing.T) {
	path, data := testFile(t, "song.mp3", 1000)

	rec := serve(t, path, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Empty(t, rec.Header().Get("Content-Range"))
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestServeFileMalformedRangeFallsBack(t *testing.T) {
	path, data := testFile(t, "song.flac", 1000)

	rec := serve(t, path, "bytes=oops")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "audio/flac", rec.Header().Get("Content-Type"))
	assert.Equal(t, data, rec.Body.Bytes())
}

func TestServeFileUnsatisfiable(t *testing.T) {
	path, _ := testFile(t, "song.mp3", 1000)

	rec := serve(t, path, "bytes=2000-3000")

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
}

func TestServeFileTail(t *testing.T) {
	path, data := testFile(t, "song.mp3", 1000)

	rec := serve(t, path, "bytes=990-")

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 990-999/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, data[990:], rec.Body.Bytes())
}

func TestServeFileMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil)
	err := ServeFile(httptest.NewRecorder(), req, filepath.Join(t.TempDir(), "gone.mp3"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestServeFileStopsOnCancelledRequest(t *testing.T) {
	path, _ := testFile(t, "song.mp3", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream/1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	err := ServeFile(rec, req, path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rec.Body.Len())
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/mpeg", ContentType("a.MP3"))
	assert.Equal(t, "audio/mp4", ContentType("a.m4a"))
	assert.Equal(t, DefaultContentType, ContentType("a.xyz"))
	assert.Equal(t, DefaultContentType, ContentType("noext"))
}
