package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"legato/internal/logging"
	"legato/pkg/models"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV encodes a short silent mono clip at path.
func writeWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           make([]int, 800),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

type fakeConverter struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	convert func(dst string) error
}

func (f *fakeConverter) Convert(ctx context.Context, _, dst, _ string) error {
	if f.calls.Add(1) == 1 && f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.convert(dst)
}

func newCache(t *testing.T, conv Converter, timeout time.Duration) (*Cache, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "transcode")
	return NewCache(dir, conv, timeout, logging.Discard()), dir
}

func track(id int64) *models.Track {
	return &models.Track{ID: id, FilePath: "/music/song.flac"}
}

func TestConcurrentRequestsShareOneConversion(t *testing.T) {
	conv := &fakeConverter{
		started: make(chan struct{}),
		release: make(chan struct{}),
		convert: writeWAV,
	}
	cache, _ := newCache(t, conv, time.Minute)

	const callers = 5
	paths := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = cache.Transcode(context.Background(), track(7), "wav")
		}(i)
	}

	<-conv.started
	time.Sleep(50 * time.Millisecond)
	close(conv.release)
	wg.Wait()

	assert.Equal(t, int32(1), conv.calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, cache.Path(7, "wav"), paths[i])
	}
	assert.FileExists(t, cache.Path(7, "wav"))
}

func TestCachedOutputIsReused(t *testing.T) {
	conv := &fakeConverter{convert: writeWAV}
	cache, _ := newCache(t, conv, time.Minute)

	first, err := cache.Transcode(context.Background(), track(1), "WAV")
	require.NoError(t, err)
	second, err := cache.Transcode(context.Background(), track(1), "wav")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), conv.calls.Load())
}

func TestFailedConversionLeavesCacheClean(t *testing.T) {
	tests := []struct {
		name    string
		convert func(dst string) error
	}{
		{"converter error", func(dst string) error {
			os.WriteFile(dst, []byte("partial"), 0644)
			return errors.New("codec exploded")
		}},
		{"invalid output", func(dst string) error {
			return os.WriteFile(dst, []byte("not a wav file at all"), 0644)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, dir := newCache(t, &fakeConverter{convert: tt.convert}, time.Minute)

			_, err := cache.Transcode(context.Background(), track(3), "wav")
			var transcodeErr *TranscodeError
			require.True(t, errors.As(err, &transcodeErr))
			assert.Equal(t, int64(3), transcodeErr.TrackID)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestFailureIsDeliveredToAllWaiters(t *testing.T) {
	conv := &fakeConverter{
		started: make(chan struct{}),
		release: make(chan struct{}),
		convert: func(string) error { return errors.New("boom") },
	}
	cache, _ := newCache(t, conv, time.Minute)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := cache.Transcode(context.Background(), track(9), "wav")
			errs <- err
		}()
	}
	<-conv.started
	time.Sleep(50 * time.Millisecond)
	close(conv.release)

	for i := 0; i < 2; i++ {
		var transcodeErr *TranscodeError
		assert.True(t, errors.As(<-errs, &transcodeErr))
	}
	assert.Equal(t, int32(1), conv.calls.Load())
}

func TestConversionTimeout(t *testing.T) {
	conv := &fakeConverter{
		release: make(chan struct{}), // never closed
		convert: writeWAV,
	}
	cache, dir := newCache(t, conv, 50*time.Millisecond)

	_, err := cache.Transcode(context.Background(), track(4), "wav")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestWaiterCancellation(t *testing.T) {
	conv := &fakeConverter{
		started: make(chan struct{}),
		release: make(chan struct{}),
		convert: writeWAV,
	}
	cache, _ := newCache(t, conv, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Transcode(ctx, track(5), "wav")
		done <- err
	}()

	<-conv.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The shared conversion still completes for later callers.
	close(conv.release)
	require.Eventually(t, func() bool {
		_, err := os.Stat(cache.Path(5, "wav"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnsupportedFormat(t *testing.T) {
	cache, _ := newCache(t, &fakeConverter{convert: writeWAV}, time.Minute)

	_, err := cache.Transcode(context.Background(), track(1), "xyz")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestValidateWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.wav")
	require.NoError(t, writeWAV(path))
	assert.NoError(t, Validate(path, "wav"))

	bad := filepath.Join(t.TempDir(), "bad.mp3")
	require.NoError(t, os.WriteFile(bad, []byte{}, 0644))
	assert.Error(t, Validate(bad, "mp3"))
}
