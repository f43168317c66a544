package server

import (
	"errors"
	"net/http"

	"legato/internal/database"
	"legato/internal/library"
	"legato/pkg/models"
)

// ScanStatus combines the last finished build with the running one.
type ScanStatus struct {
	Latest   *models.ScanReport `json:"latest,omitempty"`
	Progress library.Progress   `json:"progress"`
}

// handleLibrarySync runs a full sync of the library path and returns its
// report. A sync requested while another build runs is rejected.
func (ms *MusicServer) handleLibrarySync(w http.ResponseWriter, r *http.Request) {
	report, err := ms.library.Sync(r.Context(), ms.config.Music.LibraryPath, ms.match)
	if errors.Is(err, library.ErrBuildInProgress) {
		ms.respondWithError(w, r, http.StatusConflict, "A library build is already running", err)
		return
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Library sync failed", err)
		return
	}
	ms.respondJSON(w, report)
}

// handleScanStatus reports the latest scan and live build progress.
func (ms *MusicServer) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	status := ScanStatus{Progress: ms.library.Progress()}

	latest, err := ms.db.LatestScanReport(r.Context())
	switch {
	case err == nil:
		status.Latest = latest
	case errors.Is(err, database.ErrNotFound):
	default:
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving scan report", err)
		return
	}

	ms.respondJSON(w, status)
}
