package models

import "time"

// Artist is a performer resolved by normalized name.
type Artist struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Album is unique per (normalized name, primary artist).
type Album struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ArtistID  int64     `json:"artistId"`
	Year      int       `json:"year"`
	Picture   string    `json:"picture,omitempty"` // album-art file id under the cache
	CreatedAt time.Time `json:"createdAt"`
}

// Genre is unique per normalized name.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Track represents an indexed audio file in the catalog
type Track struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Artist    string     `json:"artist"` // denormalized "A, B" for display/search
	ArtistIDs []int64    `json:"artists"`
	AlbumID   int64      `json:"albumId"`
	GenreID   *int64     `json:"genreId,omitempty"`
	Number    int        `json:"number"`
	Duration  int        `json:"duration"` // in seconds
	Lossless  bool       `json:"lossless"`
	Year      int        `json:"year"`
	FilePath  string     `json:"-"` // don't expose file path to client
	Plays     int        `json:"plays"`
	LastPlay  *time.Time `json:"lastPlay,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// ScanReport summarizes the latest library build. Only one is kept.
type ScanReport struct {
	RunID    string    `json:"runId"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Seconds  float64   `json:"seconds"`
	Tracks   int       `json:"tracks"`
	Albums   int       `json:"albums"`
	Artists  int       `json:"artists"`
	Added    int       `json:"added"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Size     int64     `json:"size"` // bytes scanned
	Mount    string    `json:"mount"`
	LastScan time.Time `json:"lastScan"`
}
