package transcode

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// Validate checks that path decodes as format. A conversion that exits
// cleanly but leaves an empty or truncated file is caught here before the
// output is published.
func Validate(path, format string) error {
	switch format {
	case "mp3":
		return validateMP3(path)
	case "flac":
		return validateFLAC(path)
	case "wav":
		return validateWAV(path)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func validateMP3(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var frame mp3.Frame
	skipped := 0
	if err := mp3.NewDecoder(f).Decode(&frame, &skipped); err != nil {
		return fmt.Errorf("no mp3 frame in output: %w", err)
	}
	return nil
}

func validateFLAC(path string) error {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("invalid flac output: %w", err)
	}
	defer stream.Close()

	if stream.Info == nil || stream.Info.SampleRate == 0 {
		return errors.New("flac output missing stream info")
	}
	return nil
}

func validateWAV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return errors.New("invalid wav output")
	}
	if dec.SampleRate == 0 || dec.NumChans == 0 {
		return errors.New("invalid wav header")
	}
	return nil
}
