package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"legato/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedFormat is returned for targets without a known codec.
var ErrUnsupportedFormat = errors.New("unsupported transcode format")

// TranscodeError reports a failed conversion. Every caller waiting on the
// same track and format receives the same error.
type TranscodeError struct {
	TrackID int64
	Format  string
	Err     error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode track %d to %s: %v", e.TrackID, e.Format, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Cache keeps converted files under one directory, one file per track and
// format. Concurrent requests for the same output share one conversion.
type Cache struct {
	dir       string
	converter Converter
	timeout   time.Duration
	logger    *logrus.Logger

	group singleflight.Group
}

// NewCache returns a cache writing into dir. Each conversion is bounded by
// timeout; zero means no bound.
func NewCache(dir string, converter Converter, timeout time.Duration, logger *logrus.Logger) *Cache {
	return &Cache{
		dir:       dir,
		converter: converter,
		timeout:   timeout,
		logger:    logger,
	}
}

// Path is where the converted output for a track and format lives.
func (c *Cache) Path(trackID int64, format string) string {
	return filepath.Join(c.dir, strconv.FormatInt(trackID, 10)+"."+format)
}

// Transcode returns the path of track converted to format, converting it
// first if it is not cached. A caller whose ctx ends stops waiting; the
// shared conversion keeps running for the others.
func (c *Cache) Transcode(ctx context.Context, track *models.Track, format string) (string, error) {
	format = strings.ToLower(format)
	if !Supported(format) {
		return "", &TranscodeError{TrackID: track.ID, Format: format, Err: ErrUnsupportedFormat}
	}

	path := c.Path(track.ID, format)
	if cached(path) {
		return path, nil
	}

	key := strconv.FormatInt(track.ID, 10) + ":" + format
	ch := c.group.DoChan(key, func() (any, error) {
		return c.convert(track, format, path)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			c.logger.WithFields(logrus.Fields{"track_id": track.ID, "format": format}).Debug("Joined in-flight transcode")
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) convert(track *models.Track, format, path string) (string, error) {
	// A conversion that finished just before this flight started.
	if cached(path) {
		return path, nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"track_id":  track.ID,
		"format":    format,
		"file_path": track.FilePath,
	})
	fail := func(err error) (string, error) {
		log.WithError(err).Error("Transcode failed")
		return "", &TranscodeError{TrackID: track.ID, Format: format, Err: err}
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fail(fmt.Errorf("failed to create transcode directory: %w", err))
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tmp := filepath.Join(c.dir, fmt.Sprintf(".%d.%s.%s.part", track.ID, format, uuid.NewString()))
	defer os.Remove(tmp) // no-op once renamed

	start := time.Now()
	log.Info("Transcoding track")

	if err := c.converter.Convert(ctx, track.FilePath, tmp, format); err != nil {
		return fail(err)
	}
	if err := Validate(tmp, format); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fail(fmt.Errorf("failed to publish output: %w", err))
	}

	log.WithField("elapsed", time.Since(start).String()).Info("Transcode complete")
	return path, nil
}

func cached(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
