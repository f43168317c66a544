package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// ErrNoTags is wrapped by ExtractionError when a file carries no embedded tags.
var ErrNoTags = errors.New("no embedded tag data")

// ExtractionError reports a file that is unreadable or carries no usable tags.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Tags is the normalized tag data of one audio file. Missing fields keep
// their zero value except TrackNumber, which defaults to 1.
type Tags struct {
	Title       string
	Artists     []string // split on "," and "&", trimmed, in tag order
	AlbumArtist string
	Album       string
	Genre       string
	Year        int
	TrackNumber int
	Duration    int // seconds
	Lossless    bool
	Picture     []byte
	FileType    string
	Size        int64
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	formats := make([]string, 0, len(supportedFormats))
	for _, f := range supportedFormats {
		formats = append(formats, strings.ToLower(f))
	}
	return &Extractor{
		supportedFormats: formats,
		logger:           logger,
	}
}

// Extract reads one audio file and returns its tags. It never touches the
// catalog. Any failure is returned as *ExtractionError.
func (e *Extractor) Extract(filePath string) (*Tags, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return nil, &ExtractionError{Path: filePath, Err: err}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, &ExtractionError{Path: filePath, Err: err}
	}

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			err = ErrNoTags
		}
		return nil, &ExtractionError{Path: filePath, Err: err}
	}

	trackNum, _ := metadata.Track()
	if trackNum <= 0 {
		trackNum = 1
	}

	tags := &Tags{
		Title:       strings.TrimSpace(metadata.Title()),
		Artists:     SplitArtists(metadata.Artist()),
		AlbumArtist: strings.TrimSpace(metadata.AlbumArtist()),
		Album:       strings.TrimSpace(metadata.Album()),
		Genre:       strings.TrimSpace(metadata.Genre()),
		Year:        metadata.Year(),
		TrackNumber: trackNum,
		Lossless:    isLossless(metadata.FileType()),
		FileType:    string(metadata.FileType()),
		Size:        stat.Size(),
	}
	if len(tags.Artists) == 0 && tags.AlbumArtist != "" {
		tags.Artists = SplitArtists(tags.AlbumArtist)
	}
	if picture := metadata.Picture(); picture != nil && len(picture.Data) > 0 {
		tags.Picture = picture.Data
	}

	duration, err := e.calculateDuration(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file_path": filePath,
			"error":     err.Error(),
		}).Debug("Failed to calculate duration, setting to 0")
		duration = 0
	}
	tags.Duration = duration

	e.logger.WithFields(logrus.Fields{
		"file_path":       filePath,
		"title":           tags.Title,
		"artists":         tags.Artists,
		"album":           tags.Album,
		"duration":        tags.Duration,
		"processing_time": time.Since(startTime),
	}).Debug("Successfully extracted metadata")

	return tags, nil
}

// SplitArtists splits artist tag values on "," and "&" (and the NUL
// separator some ID3v2.4 writers use), trims whitespace and drops empty
// tokens. Order is preserved.
func SplitArtists(values ...string) []string {
	var names []string
	for _, value := range values {
		tokens := strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == '&' || r == 0
		})
		for _, token := range tokens {
			if name := strings.TrimSpace(token); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func isLossless(ft tag.FileType) bool {
	return ft == tag.FLAC || ft == tag.ALAC
}

// calculateDuration calculates the duration of an audio file in seconds
func (e *Extractor) calculateDuration(filePath string) (int, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".m4a":
		return e.durationM4A(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration using frame decoding; fallback to average bitrate estimation only if frames fail entirely.
func (e *Extractor) durationMP3(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 {
				return e.estimateFromFileSize(f, 192000)
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	return int(total.Seconds()), nil
}

// FLAC duration via STREAMINFO metadata block
func (e *Extractor) durationFLAC(path string) (int, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		secs := float64(si.NSamples) / float64(si.SampleRate)
		return int(secs + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// M4A (AAC/ALAC in MP4) duration from the 'mvhd' timescale and duration.
func (e *Extractor) durationM4A(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, head); err != nil {
			return 0, err
		}
		size := binary.BigEndian.Uint32(head[0:4])
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size")
		}
		if string(head[4:8]) != "moov" {
			if _, err := f.Seek(int64(size)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			continue
		}

		limit := int64(size) - 8
		for read := int64(0); read < limit; {
			if _, err := io.ReadFull(f, head); err != nil {
				return 0, err
			}
			subSize := binary.BigEndian.Uint32(head[0:4])
			if string(head[4:8]) == "mvhd" {
				return readMVHD(f)
			}
			if subSize < 8 {
				return 0, fmt.Errorf("invalid sub-atom size")
			}
			if _, err := f.Seek(int64(subSize)-8, io.SeekCurrent); err != nil {
				return 0, err
			}
			read += int64(subSize)
		}
		return 0, fmt.Errorf("mvhd atom not found")
	}
}

// readMVHD reads timescale and duration from an mvhd body positioned at its
// version byte.
func readMVHD(r io.ReadSeeker) (int, error) {
	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return 0, err
	}

	var timescale uint32
	var units uint64
	if version[0] == 1 {
		// flags + 64-bit creation and modification times
		buf := make([]byte, 3+8+8+4+8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(buf[19:23])
		units = binary.BigEndian.Uint64(buf[23:31])
	} else {
		buf := make([]byte, 3+4+4+4+4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(buf[11:15])
		units = uint64(binary.BigEndian.Uint32(buf[15:19]))
	}
	if timescale == 0 {
		return 0, fmt.Errorf("invalid timescale")
	}
	secs := float64(units) / float64(timescale)
	return int(secs + 0.5), nil
}

// estimateFromFileSize provides last-resort estimation if parsing fails.
func (e *Extractor) estimateFromFileSize(f *os.File, bitrate int) (int, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return int((st.Size() * 8) / int64(bitrate)), nil
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
