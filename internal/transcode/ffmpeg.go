package transcode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter writes src re-encoded as format to dst.
type Converter interface {
	Convert(ctx context.Context, src, dst, format string) error
}

// codecArgs maps each supported target to its ffmpeg codec and muxer.
var codecArgs = map[string][]string{
	"mp3":  {"-codec:a", "libmp3lame", "-f", "mp3"},
	"flac": {"-codec:a", "flac", "-f", "flac"},
	"wav":  {"-codec:a", "pcm_s16le", "-f", "wav"},
}

// Supported reports whether format is a target the cache can produce.
func Supported(format string) bool {
	_, ok := codecArgs[strings.ToLower(format)]
	return ok
}

// FFmpeg converts files with an external ffmpeg binary.
type FFmpeg struct {
	path    string
	bitrate string
}

// NewFFmpeg locates the ffmpeg binary. bitrate applies to lossy targets.
func NewFFmpeg(path, bitrate string) (*FFmpeg, error) {
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found at %q: %w", path, err)
	}
	return &FFmpeg{path: resolved, bitrate: bitrate}, nil
}

// Convert runs ffmpeg until it exits or ctx ends. The process is killed
// on cancellation.
func (f *FFmpeg) Convert(ctx context.Context, src, dst, format string) error {
	codec, ok := codecArgs[format]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn", // drop embedded cover art streams
		"-map_metadata", "0",
	}
	args = append(args, codec...)
	if format == "mp3" && f.bitrate != "" {
		args = append(args, "-b:a", f.bitrate)
	}
	args = append(args, dst)

	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}
		return fmt.Errorf("ffmpeg failed: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
