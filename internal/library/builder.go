package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"legato/internal/metadata"
	"legato/pkg/models"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Extractor reads tags from one file.
type Extractor interface {
	Extract(path string) (*metadata.Tags, error)
}

// BuilderConfig holds the filesystem locations a build touches.
type BuilderConfig struct {
	// CacheDir gets album-art/ and transcode/ subdirectories.
	CacheDir string
	// MountPath is the library root recorded in the scan report.
	MountPath string
	// ErrorLogPath is appended to with one entry per failed file.
	ErrorLogPath string
	// ProgressOutput receives the progress bar; nil disables it.
	ProgressOutput io.Writer
}

// Progress is a snapshot of the running build.
type Progress struct {
	Running bool `json:"running"`
	Current int  `json:"current"`
	Total   int  `json:"total"`
}

// Builder runs extraction, resolution and registration over a list of
// files. At most one build runs at a time; files within a build are
// processed strictly in order, which keeps find-or-create safe without
// per-key locks.
type Builder struct {
	buildLock sync.Mutex

	extractor Extractor
	resolver  *Resolver
	registrar *Registrar
	catalog   Catalog
	cfg       BuilderConfig
	logger    *logrus.Logger
	now       func() time.Time

	running atomic.Bool
	current atomic.Int64
	total   atomic.Int64
}

// NewBuilder wires a builder.
func NewBuilder(cfg BuilderConfig, catalog Catalog, extractor Extractor, resolver *Resolver, registrar *Registrar, logger *logrus.Logger) *Builder {
	return &Builder{
		extractor: extractor,
		resolver:  resolver,
		registrar: registrar,
		catalog:   catalog,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Progress returns the current/total counters of the running build.
func (b *Builder) Progress() Progress {
	return Progress{
		Running: b.running.Load(),
		Current: int(b.current.Load()),
		Total:   int(b.total.Load()),
	}
}

type outcome int

const (
	outcomeAdded outcome = iota
	outcomeSkipped
)

// Build ingests paths in order and overwrites the latest scan report. It
// fails fast with ErrBuildInProgress if another build is running. Per-file
// failures are logged to the error log and never abort the run; catalog
// failures while gathering the final counts do.
func (b *Builder) Build(ctx context.Context, paths []string) (*models.ScanReport, error) {
	if !b.buildLock.TryLock() {
		return nil, ErrBuildInProgress
	}
	defer b.buildLock.Unlock()

	// A started build runs to completion over its input.
	ctx = context.WithoutCancel(ctx)

	if err := b.ensureDirs(); err != nil {
		return nil, err
	}

	errorLog, err := os.OpenFile(b.cfg.ErrorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}
	defer errorLog.Close()

	report := &models.ScanReport{
		RunID: uuid.NewString(),
		Start: b.now(),
		Mount: b.cfg.MountPath,
	}
	log := b.logger.WithFields(logrus.Fields{"run_id": report.RunID, "files": len(paths)})
	log.Info("Starting to build music library")

	b.running.Store(true)
	b.current.Store(0)
	b.total.Store(int64(len(paths)))
	defer b.running.Store(false)

	bar := b.newProgressBar(len(paths))
	for i, path := range paths {
		if info, err := os.Stat(path); err == nil {
			report.Size += info.Size()
		}

		result, err := b.processFile(ctx, path)
		switch {
		case err != nil:
			report.Failed++
			log.WithError(err).WithField("file_path", path).Warn("Failed to ingest file")
			fmt.Fprintf(errorLog, "%s\n[ERROR]: %v\n\n", path, err)
		case result == outcomeSkipped:
			report.Skipped++
		default:
			report.Added++
		}

		b.current.Store(int64(i + 1))
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	report.End = b.now()
	report.LastScan = report.End
	report.Seconds = report.End.Sub(report.Start).Seconds()

	if report.Tracks, err = b.catalog.CountTracks(ctx); err != nil {
		return nil, err
	}
	if report.Albums, err = b.catalog.CountAlbums(ctx); err != nil {
		return nil, err
	}
	if report.Artists, err = b.catalog.CountArtists(ctx); err != nil {
		return nil, err
	}
	if err := b.catalog.SaveScanReport(ctx, report); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"added":   report.Added,
		"skipped": report.Skipped,
		"failed":  report.Failed,
		"tracks":  report.Tracks,
		"albums":  report.Albums,
		"artists": report.Artists,
		"seconds": report.Seconds,
	}).Info("Done building library")

	return report, nil
}

// Sync walks root, keeps files accepted by match and builds them oldest
// first.
func (b *Builder) Sync(ctx context.Context, root string, match func(path string) bool) (*models.ScanReport, error) {
	files, size, err := CollectFiles(root, match)
	if err != nil {
		return nil, fmt.Errorf("failed to walk library: %w", err)
	}
	b.logger.WithFields(logrus.Fields{
		"library_path": root,
		"files":        len(files),
		"bytes":        size,
	}).Info("Syncing music library")
	return b.Build(ctx, Paths(files))
}

func (b *Builder) processFile(ctx context.Context, path string) (outcome, error) {
	known, err := b.registrar.Known(ctx, path)
	if err != nil {
		return 0, err
	}
	if known {
		return outcomeSkipped, nil
	}

	tags, err := b.extractor.Extract(path)
	if err != nil {
		var extractionErr *metadata.ExtractionError
		if !errors.As(err, &extractionErr) {
			err = &metadata.ExtractionError{Path: path, Err: err}
		}
		return 0, err
	}

	artists, err := b.resolver.ResolveArtists(ctx, tags.Artists)
	if err != nil {
		return 0, err
	}

	// The first artist is taken as the album artist.
	album, err := b.resolver.ResolveAlbum(ctx, AlbumRequest{
		Name:    tags.Album,
		Artist:  artists[0],
		Year:    tags.Year,
		Picture: tags.Picture,
		Dir:     filepath.Dir(path),
	})
	if err != nil {
		return 0, err
	}

	var genre *models.Genre
	if Normalize(tags.Genre) != "" {
		if genre, err = b.resolver.ResolveGenre(ctx, tags.Genre); err != nil {
			return 0, err
		}
	}

	if _, err := b.registrar.Register(ctx, path, tags, artists, album, genre); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			return outcomeSkipped, nil
		}
		return 0, err
	}
	return outcomeAdded, nil
}

func (b *Builder) ensureDirs() error {
	for _, dir := range []string{
		b.cfg.CacheDir,
		filepath.Join(b.cfg.CacheDir, "album-art"),
		filepath.Join(b.cfg.CacheDir, "transcode"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
		}
	}
	return nil
}

// newProgressBar returns nil when there is nothing to draw.
func (b *Builder) newProgressBar(total int) *progressbar.ProgressBar {
	out := b.cfg.ProgressOutput
	if out == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("Building library"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
	)
}
