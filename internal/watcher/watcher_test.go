package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"legato/internal/library"
	"legato/internal/logging"
	"legato/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuilder struct {
	mu      sync.Mutex
	batches [][]string
	reject  int // number of calls to fail with ErrBuildInProgress
}

func (b *fakeBuilder) Build(_ context.Context, paths []string) (*models.ScanReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reject > 0 {
		b.reject--
		return nil, library.ErrBuildInProgress
	}
	b.batches = append(b.batches, append([]string(nil), paths...))
	return &models.ScanReport{Added: len(paths)}, nil
}

func (b *fakeBuilder) snapshot() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.batches...)
}

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
}

func (r *fakeRemover) RemoveTrackByPath(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, path)
	return true, nil
}

func (r *fakeRemover) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.removed...)
}

func isMP3(path string) bool { return strings.HasSuffix(path, ".mp3") }

// startLoop runs the event loop without an fsnotify backend.
func startLoop(t *testing.T, builder Builder, remover Remover, debounce time.Duration) *Watcher {
	t.Helper()
	w := New(t.TempDir(), builder, remover, isMP3, debounce, logging.Discard())
	go w.run()
	t.Cleanup(func() { w.Close() })
	return w
}

func writeFiles(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("%02d.mp3", i))
		require.NoError(t, os.WriteFile(paths[i], []byte("data"), 0644))
	}
	return paths
}

func TestBurstProducesSingleBuild(t *testing.T) {
	builder := &fakeBuilder{}
	w := startLoop(t, builder, nil, 50*time.Millisecond)
	paths := writeFiles(t, 10)

	for _, p := range paths {
		w.events <- Event{Op: Added, Path: p}
	}

	require.Eventually(t, func() bool { return len(builder.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	// No second build follows once the window has passed.
	time.Sleep(150 * time.Millisecond)

	batches := builder.snapshot()
	require.Len(t, batches, 1)
	assert.ElementsMatch(t, paths, batches[0])
}

func TestSeparateBurstsProduceSeparateBuilds(t *testing.T) {
	builder := &fakeBuilder{}
	w := startLoop(t, builder, nil, 30*time.Millisecond)
	paths := writeFiles(t, 2)

	w.events <- Event{Op: Added, Path: paths[0]}
	require.Eventually(t, func() bool { return len(builder.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	w.events <- Event{Op: Added, Path: paths[1]}
	require.Eventually(t, func() bool { return len(builder.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)

	batches := builder.snapshot()
	assert.Equal(t, []string{paths[0]}, batches[0])
	assert.Equal(t, []string{paths[1]}, batches[1])
}

func TestRejectedBuildIsRequeued(t *testing.T) {
	builder := &fakeBuilder{reject: 1}
	w := startLoop(t, builder, nil, 30*time.Millisecond)
	paths := writeFiles(t, 3)

	for _, p := range paths {
		w.events <- Event{Op: Added, Path: p}
	}

	require.Eventually(t, func() bool { return len(builder.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, paths, builder.snapshot()[0])
}

func TestRemovalDropsPendingAndReconciles(t *testing.T) {
	builder := &fakeBuilder{}
	remover := &fakeRemover{}
	w := startLoop(t, builder, remover, 50*time.Millisecond)
	paths := writeFiles(t, 2)

	w.events <- Event{Op: Added, Path: paths[0]}
	w.events <- Event{Op: Added, Path: paths[1]}
	w.events <- Event{Op: Removed, Path: paths[1]}

	require.Eventually(t, func() bool { return len(builder.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{paths[0]}, builder.snapshot()[0])
	assert.Equal(t, []string{paths[1]}, remover.paths())
}

func TestVanishedFilesAreDropped(t *testing.T) {
	builder := &fakeBuilder{}
	w := startLoop(t, builder, nil, 30*time.Millisecond)
	paths := writeFiles(t, 2)
	require.NoError(t, os.Remove(paths[1]))

	w.events <- Event{Op: Added, Path: paths[0]}
	w.events <- Event{Op: Added, Path: paths[1]}

	require.Eventually(t, func() bool { return len(builder.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{paths[0]}, builder.snapshot()[0])
}

func TestStartWatchesDirectory(t *testing.T) {
	root := t.TempDir()
	builder := &fakeBuilder{}
	w := New(root, builder, nil, isMP3, 50*time.Millisecond, logging.Discard())
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Close() })

	path := filepath.Join(root, "new.mp3")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))

	require.Eventually(t, func() bool { return len(builder.snapshot()) == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{path}, builder.snapshot()[0])
}

func TestDefaultDebounce(t *testing.T) {
	w := New(t.TempDir(), &fakeBuilder{}, nil, isMP3, 0, logging.Discard())
	assert.Equal(t, DefaultDebounce, w.debounce)
}
