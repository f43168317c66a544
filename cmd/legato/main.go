package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"legato/internal/artwork"
	"legato/internal/config"
	"legato/internal/database"
	"legato/internal/library"
	"legato/internal/logging"
	"legato/internal/metadata"
	"legato/internal/server"
	"legato/internal/transcode"
	"legato/internal/tunnel"
	"legato/internal/watcher"

	"github.com/sirupsen/logrus"
)

const coverCacheTTL = 10 * time.Minute

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	// Initialize basic logger for startup
	startup := logrus.New()
	startup.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		startup.WithError(err).Fatal("Error loading configuration")
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		startup.WithError(err).Fatal("Error configuring logger")
	}
	defer logCloser.Close()

	// Check if music directory exists
	if _, err := os.Stat(cfg.Music.LibraryPath); os.IsNotExist(err) {
		logger.WithField("library_path", cfg.Music.LibraryPath).Fatal("Music directory does not exist. Please create it and add your music files.")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.WithError(err).Fatal("Error initializing database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	extractor := metadata.NewExtractor(cfg.Music.SupportedFormats, logger)
	art := artwork.NewStore(cfg.AlbumArtDir())
	covers := artwork.NewCachedProvider(artwork.CoverFileProvider{Names: artwork.DefaultCoverNames}, coverCacheTTL)
	defer covers.Close()

	resolver := library.NewResolver(db, art, logger, library.WithAlbumArtProvider(covers))
	builder := library.NewBuilder(library.BuilderConfig{
		CacheDir:       cfg.Cache.Path,
		MountPath:      cfg.Music.LibraryPath,
		ErrorLogPath:   cfg.Logging.ErrorLog,
		ProgressOutput: os.Stderr,
	}, db, extractor, resolver, library.NewRegistrar(db), logger)

	opts := []server.Option{server.WithAlbumArt(art)}
	if ffmpeg, err := transcode.NewFFmpeg(cfg.Transcode.FFmpegPath, cfg.Transcode.Bitrate); err != nil {
		logger.WithError(err).Warn("Transcoding disabled")
	} else {
		opts = append(opts, server.WithTranscoder(
			transcode.NewCache(cfg.TranscodeDir(), ffmpeg, cfg.TranscodeTimeout(), logger)))
	}

	// Scan the music library
	if cfg.Music.ScanOnStartup {
		report, err := builder.Sync(ctx, cfg.Music.LibraryPath, extractor.IsAudioFile)
		if err != nil {
			logger.WithError(err).Fatal("Error scanning music library")
		}
		if report.Tracks == 0 {
			logger.WithField("supported_formats", cfg.Music.SupportedFormats).Warn("No supported audio files found in music directory")
		}
	} else {
		logger.Info("Skipping library scan (disabled in config)")
	}

	if cfg.Music.WatchForChanges {
		w := watcher.New(cfg.Music.LibraryPath, builder, db, extractor.IsAudioFile, cfg.Debounce(), logger)
		if err := w.Start(); err != nil {
			logger.WithError(err).Warn("Could not start file watcher")
		} else {
			defer w.Close()
		}
	}

	musicServer := server.NewMusicServer(cfg, db, builder, extractor.IsAudioFile, logger, opts...)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- musicServer.Start()
	}()

	// Start ngrok tunnel if enabled
	tun, err := tunnel.NewService(&cfg.Ngrok, logger)
	if err != nil {
		logger.WithError(err).Warn("Ngrok tunnel not available")
	} else if err := tun.Start(ctx, "http://localhost:"+cfg.Server.Port); err != nil {
		logger.WithError(err).Warn("Could not start ngrok tunnel")
	} else {
		defer tun.Stop()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("Server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := musicServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Error during shutdown")
	}
	logger.Info("Music server shutdown complete")
}
