package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"legato/internal/artwork"
	"legato/internal/config"
	"legato/internal/library"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// Catalog is the read side of the store plus play counting.
type Catalog interface {
	GetTrackByID(ctx context.Context, id int64) (*models.Track, error)
	ListTracks(ctx context.Context, skip, limit int) ([]models.Track, error)
	CountTracks(ctx context.Context) (int, error)
	RecordPlay(ctx context.Context, id int64, at time.Time) error
	LatestScanReport(ctx context.Context) (*models.ScanReport, error)
	Ping(ctx context.Context) error
}

// Library triggers and observes builds.
type Library interface {
	Sync(ctx context.Context, root string, match func(path string) bool) (*models.ScanReport, error)
	Progress() library.Progress
}

// Transcoder returns a playable file for a track in the requested format.
type Transcoder interface {
	Transcode(ctx context.Context, track *models.Track, format string) (string, error)
}

// MusicServer represents the main music streaming server
type MusicServer struct {
	config     *config.Config
	db         Catalog
	library    Library
	transcoder Transcoder
	art        *artwork.Store
	match      func(path string) bool
	logger     *logrus.Logger

	httpServer *http.Server
}

// Option configures optional collaborators.
type Option func(*MusicServer)

// WithTranscoder enables ?transcode= on the stream endpoint.
func WithTranscoder(t Transcoder) Option {
	return func(ms *MusicServer) { ms.transcoder = t }
}

// WithAlbumArt enables the album art endpoint.
func WithAlbumArt(store *artwork.Store) Option {
	return func(ms *MusicServer) { ms.art = store }
}

// NewMusicServer creates a new music server instance. match decides which
// files a sync picks up.
func NewMusicServer(cfg *config.Config, db Catalog, lib Library, match func(path string) bool, logger *logrus.Logger, opts ...Option) *MusicServer {
	ms := &MusicServer{
		config:  cfg,
		db:      db,
		library: lib,
		match:   match,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(ms)
	}
	return ms
}

// Handler returns the routed handler wrapped in middleware.
func (ms *MusicServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tracks", ms.handleGetTracks)
	mux.HandleFunc("PUT /api/tracks/{id}/plays", ms.handleTrackPlay)
	mux.HandleFunc("GET /stream/{id}", ms.handleStreamTrack)
	mux.HandleFunc("POST /api/library/sync", ms.handleLibrarySync)
	mux.HandleFunc("GET /api/library/scan", ms.handleScanStatus)
	mux.HandleFunc("GET /albumart/{id}", ms.handleAlbumArt)
	mux.HandleFunc("GET /health", ms.handleHealthCheck)

	var h http.Handler = mux
	h = ms.corsMiddleware(h)
	h = ms.requestLoggingMiddleware(h)
	h = ms.panicRecoveryMiddleware(h)
	return h
}

// Start serves HTTP until Shutdown is called.
func (ms *MusicServer) Start() error {
	ms.httpServer = &http.Server{
		Addr:        ms.config.GetAddress(),
		Handler:     ms.Handler(),
		ReadTimeout: time.Duration(ms.config.Server.ReadTimeout) * time.Second,
	}

	ms.logger.WithField("address", fmt.Sprintf("http://%s", ms.config.GetAddress())).Info("Legato server starting")

	if err := ms.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the music server
func (ms *MusicServer) Shutdown(ctx context.Context) error {
	if ms.httpServer == nil {
		return nil
	}
	ms.logger.Info("Shutting down music server...")
	return ms.httpServer.Shutdown(ctx)
}
