package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"legato/internal/library"
	"legato/pkg/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period after the last add before a build.
const DefaultDebounce = 3 * time.Second

// Builder runs one ingestion batch.
type Builder interface {
	Build(ctx context.Context, paths []string) (*models.ScanReport, error)
}

// Remover reconciles the catalog when a file disappears.
type Remover interface {
	RemoveTrackByPath(ctx context.Context, filePath string) (bool, error)
}

// Op is the kind of change carried by an Event.
type Op int

const (
	Added Op = iota
	Removed
)

// Event is one path-level change fed to the watcher loop.
type Event struct {
	Op   Op
	Path string
}

// Watcher turns filesystem activity under a root into debounced builds.
// All accumulation state is owned by the run loop; everything else talks
// to it through the events channel.
type Watcher struct {
	root     string
	builder  Builder
	remover  Remover
	match    func(path string) bool
	debounce time.Duration
	logger   *logrus.Logger

	fs      *fsnotify.Watcher
	events  chan Event
	results chan buildResult
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

type buildResult struct {
	paths  []string
	report *models.ScanReport
	err    error
}

// New creates a watcher for root. match filters which files are audio;
// a debounce of zero or less means DefaultDebounce.
func New(root string, builder Builder, remover Remover, match func(path string) bool, debounce time.Duration, logger *logrus.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		builder:  builder,
		remover:  remover,
		match:    match,
		debounce: debounce,
		logger:   logger,
		events:   make(chan Event, 256),
		results:  make(chan buildResult, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start watches the root recursively and runs the event loop until Close.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fs = fsw

	if err := w.addRecursive(w.root, false); err != nil {
		fsw.Close()
		return err
	}

	go w.forward()
	go w.run()

	w.logger.WithFields(logrus.Fields{
		"library_path": w.root,
		"debounce":     w.debounce.String(),
	}).Info("File watcher started")
	return nil
}

// Close stops the event loop. A build already handed off keeps running.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		if w.fs != nil {
			err = w.fs.Close()
		}
		<-w.done
	})
	return err
}

// forward translates fsnotify events into path events.
func (w *Watcher) forward() {
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.translate(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

func (w *Watcher) translate(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// Directories moved in carry files that never fire Create.
			if err := w.addRecursive(event.Name, true); err != nil {
				w.logger.WithError(err).WithField("directory", event.Name).Warn("Failed to watch new directory")
			}
			return
		}
		if w.match(event.Name) {
			w.send(Event{Op: Added, Path: event.Name})
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if w.match(event.Name) {
			w.send(Event{Op: Removed, Path: event.Name})
		}
	}
}

func (w *Watcher) send(e Event) {
	select {
	case w.events <- e:
	case <-w.stop:
	}
}

// addRecursive watches dir and its subdirectories. With enqueue set,
// audio files already inside are reported as added.
func (w *Watcher) addRecursive(dir string, enqueue bool) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				w.logger.WithError(err).WithField("directory", path).Warn("Cannot watch directory")
			}
			return nil
		}
		if enqueue && w.match(path) {
			w.send(Event{Op: Added, Path: path})
		}
		return nil
	})
}

// run owns the pending set, its byte total and the debounce timer.
func (w *Watcher) run() {
	defer close(w.done)

	pending := make(map[string]int64)
	var pendingBytes int64
	building := false

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	armed := false

	arm := func() {
		timer.Reset(w.debounce)
		armed = true
	}

	for {
		select {
		case <-w.stop:
			if len(pending) > 0 {
				w.logger.WithField("files", len(pending)).Warn("Watcher stopped with pending files")
			}
			return

		case e := <-w.events:
			switch e.Op {
			case Added:
				size := int64(0)
				if info, err := os.Stat(e.Path); err == nil {
					size = info.Size()
				}
				pendingBytes += size - pending[e.Path]
				pending[e.Path] = size
				arm()
				w.logger.WithFields(logrus.Fields{
					"file_path":     e.Path,
					"pending_files": len(pending),
					"pending_bytes": pendingBytes,
				}).Debug("Queued new audio file")

			case Removed:
				if size, ok := pending[e.Path]; ok {
					delete(pending, e.Path)
					pendingBytes -= size
				}
				w.removeTrack(e.Path)
			}

		case <-timer.C:
			armed = false
			if len(pending) == 0 {
				continue
			}
			if building {
				// The next cycle waits for the running batch.
				arm()
				continue
			}

			paths := w.order(pending)
			w.logger.WithFields(logrus.Fields{
				"files": len(paths),
				"bytes": pendingBytes,
			}).Info("Debounce elapsed, building library")
			clear(pending)
			pendingBytes = 0

			if len(paths) == 0 {
				continue
			}
			building = true
			go w.build(paths)

		case res := <-w.results:
			building = false
			if errors.Is(res.err, library.ErrBuildInProgress) {
				// Another build holds the lock; keep the batch for the next cycle.
				for _, p := range res.paths {
					if _, ok := pending[p]; !ok {
						if info, err := os.Stat(p); err == nil {
							pending[p] = info.Size()
							pendingBytes += info.Size()
						}
					}
				}
				w.logger.WithField("files", len(res.paths)).Info("Build in progress, requeued batch")
				if !armed {
					arm()
				}
				continue
			}
			if res.err != nil {
				w.logger.WithError(res.err).WithField("files", len(res.paths)).Error("Watcher build failed")
			}
		}
	}
}

// order sorts pending paths oldest first, dropping files that are gone.
func (w *Watcher) order(pending map[string]int64) []string {
	files := make([]library.File, 0, len(pending))
	for path := range pending {
		f, err := library.StatFile(path)
		if err != nil {
			w.logger.WithError(err).WithField("file_path", path).Debug("Dropping vanished file")
			continue
		}
		files = append(files, f)
	}
	library.SortByCreation(files)
	return library.Paths(files)
}

func (w *Watcher) build(paths []string) {
	report, err := w.builder.Build(context.Background(), paths)
	w.results <- buildResult{paths: paths, report: report, err: err}
}

func (w *Watcher) removeTrack(path string) {
	log := w.logger.WithField("file_path", path)
	log.Info("Audio file removed")

	if w.remover == nil {
		return
	}
	removed, err := w.remover.RemoveTrackByPath(context.Background(), path)
	if err != nil {
		log.WithError(err).Error("Error removing track from database")
		return
	}
	if removed {
		log.Info("Removed track from database")
	}
}
