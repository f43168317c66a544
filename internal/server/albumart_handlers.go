package server

import (
	"errors"
	"net/http"
	"os"

	"legato/internal/artwork"
)

// handleAlbumArt serves album art images
func (ms *MusicServer) handleAlbumArt(w http.ResponseWriter, r *http.Request) {
	if ms.art == nil {
		ms.respondWithError(w, r, http.StatusNotFound, "Album art not found", nil)
		return
	}

	path, err := ms.art.Path(r.PathValue("id"))
	if err != nil {
		ms.respondWithValidationError(w, r, ValidationError{
			Field:   "art_id",
			Message: "Invalid album art ID",
			Code:    "INVALID_ART_ID",
		})
		return
	}

	artData, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		ms.respondWithError(w, r, http.StatusNotFound, "Album art not found", nil)
		return
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error reading album art", err)
		return
	}

	w.Header().Set("Content-Type", artwork.MimeType(artData))
	w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
	w.Write(artData)
}
