package library

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sentinels used when a file lacks the tag an entity is keyed on.
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// Normalize title-cases a name and collapses runs of whitespace, so
// "  daft   PUNK" and "Daft Punk" share one catalog key.
func Normalize(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	// Casers keep state, so one is built per call.
	return cases.Title(language.Und).String(strings.ToLower(name))
}
