package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"legato/internal/database"
	"legato/internal/stream"
	"legato/internal/transcode"
	"legato/pkg/models"

	"github.com/sirupsen/logrus"
)

// handleGetTracks returns one page of tracks, newest first.
func (ms *MusicServer) handleGetTracks(w http.ResponseWriter, r *http.Request) {
	skip, limit, errs := validatePagination(r)
	if len(errs) > 0 {
		ms.respondWithValidationError(w, r, errs...)
		return
	}

	tracks, err := ms.db.ListTracks(r.Context(), skip, limit)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving tracks", err)
		return
	}
	total, err := ms.db.CountTracks(r.Context())
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving track count", err)
		return
	}
	if tracks == nil {
		tracks = []models.Track{}
	}

	ms.respondJSON(w, map[string]interface{}{
		"tracks": tracks,
		"total":  total,
		"skip":   skip,
		"limit":  limit,
	})
}

// lookupTrack resolves the {id} path value, answering the request itself
// when the track cannot be produced.
func (ms *MusicServer) lookupTrack(w http.ResponseWriter, r *http.Request) (*models.Track, bool) {
	trackID, verr := validateTrackID(r.PathValue("id"))
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return nil, false
	}

	track, err := ms.db.GetTrackByID(r.Context(), trackID)
	if errors.Is(err, database.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
		return nil, false
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving track", err)
		return nil, false
	}
	return track, true
}

// handleStreamTrack streams a track by ID with Range support, converting
// it first when ?transcode= is given.
func (ms *MusicServer) handleStreamTrack(w http.ResponseWriter, r *http.Request) {
	track, ok := ms.lookupTrack(w, r)
	if !ok {
		return
	}

	path := track.FilePath
	if format := ms.transcodeFormat(r); format != "" {
		if ms.transcoder == nil {
			ms.respondWithError(w, r, http.StatusNotImplemented, "Transcoding is not available", nil)
			return
		}
		converted, err := ms.transcoder.Transcode(r.Context(), track, format)
		switch {
		case err == nil:
			path = converted
		case errors.Is(err, transcode.ErrUnsupportedFormat):
			ms.respondWithError(w, r, http.StatusBadRequest, "Unsupported transcode format", err)
			return
		case errors.Is(err, context.Canceled):
			return
		default:
			ms.respondWithError(w, r, http.StatusInternalServerError, "Error transcoding track", err)
			return
		}
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ms.respondWithError(w, r, http.StatusNotFound, "Audio file missing", err)
			return
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error opening audio file", err)
		return
	}

	log := ms.logger.WithFields(logrus.Fields{"track_id": track.ID, "file_path": path})
	log.Debug("Streaming track")

	if err := stream.ServeFile(w, r, path); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug("Client disconnected")
			return
		}
		log.WithError(err).Warn("Error streaming file")
	}
}

// transcodeFormat reads ?transcode=; "true" selects the configured default.
func (ms *MusicServer) transcodeFormat(r *http.Request) string {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("transcode")))
	switch v {
	case "", "false", "0":
		return ""
	case "true", "1":
		return ms.config.Transcode.DefaultFormat
	default:
		return v
	}
}

// handleTrackPlay records one play of a track.
func (ms *MusicServer) handleTrackPlay(w http.ResponseWriter, r *http.Request) {
	trackID, verr := validateTrackID(r.PathValue("id"))
	if verr != nil {
		ms.respondWithValidationError(w, r, *verr)
		return
	}

	err := ms.db.RecordPlay(r.Context(), trackID, time.Now())
	if errors.Is(err, database.ErrNotFound) {
		ms.respondWithError(w, r, http.StatusNotFound, "Track not found", nil)
		return
	}
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error recording play", err)
		return
	}

	ms.respondJSON(w, map[string]interface{}{"success": true, "track_id": trackID})
}
