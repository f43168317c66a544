package library

import (
	"errors"
	"fmt"
)

// ErrBuildInProgress is returned when a build is requested while another
// one holds the build lock. The request is rejected, never queued.
var ErrBuildInProgress = errors.New("library build already in progress")

// ErrAlreadyRegistered signals that a track already exists for a path.
// Builds count it as skipped, not failed.
var ErrAlreadyRegistered = errors.New("track already registered")

// ResolutionError reports a catalog lookup or create failure while
// resolving one entity of a file.
type ResolutionError struct {
	Kind string // artist, album, genre, track
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
