package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Buffer size for streaming (64KB)
const bufferSize = 64 * 1024

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".aac":  "audio/aac",
}

// DefaultContentType is used for extensions without a known mapping.
const DefaultContentType = "audio/mp3"

// ContentType derives the audio MIME type from the file extension.
func ContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return DefaultContentType
}

// ServeFile writes path to w, honoring a single byte range from the
// request. A malformed Range header is answered with the whole file. The
// file is closed when the copy ends, including on client disconnect.
func ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("error reading file info: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Content-Type", ContentType(path))
	h.Set("Accept-Ranges", "bytes")

	body := io.Reader(file)
	length := size
	status := http.StatusOK

	if header := r.Header.Get("Range"); header != "" {
		rng, err := ParseRange(header, size)
		var parseErr *RangeParseError
		switch {
		case err == nil:
			if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
				return fmt.Errorf("error seeking file: %w", err)
			}
			body = io.LimitReader(file, rng.Length())
			length = rng.Length()
			status = http.StatusPartialContent
			h.Set("Content-Range", rng.ContentRange(size))
		case errors.Is(err, ErrUnsatisfiable):
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return nil
		case errors.As(err, &parseErr):
			// Fall through to a full response.
		default:
			return err
		}
	}

	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return nil
	}

	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(w, &contextReader{ctx: r.Context(), r: body}, buf); err != nil {
		return fmt.Errorf("error streaming file: %w", err)
	}
	return nil
}

// contextReader stops a copy once the request context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
