// Package book defines the provider-agnostic result types shared by the
// metadata and cover layers.
package book

import (
	"github.com/MarcinSachs/libriya/internal/isbn"
)

// SourceID identifies which metadata client produced a record.
type SourceID string

const (
	// SourceNone marks the absence of a metadata result.
	SourceNone SourceID = "none"
	// SourceOpenLibrary is the general-purpose open catalog.
	SourceOpenLibrary SourceID = "open_library"
	// SourceNationalLibrary is the optional regional national-library catalog.
	SourceNationalLibrary SourceID = "national_library"
)

// CoverSourceID identifies which cover client produced a cover reference.
type CoverSourceID string

const (
	// CoverSourceNone marks the absence of a cover result.
	CoverSourceNone CoverSourceID = "none"
	// CoverSourceOpenLibrary covers both metadata-embedded Open Library
	// covers and the dedicated covers endpoint, matching how callers
	// persist provenance.
	CoverSourceOpenLibrary CoverSourceID = "open_library"
	// CoverSourceBookcoverAPI is the premium per-title cover lookup.
	CoverSourceBookcoverAPI CoverSourceID = "bookcover_api"
	// CoverSourceLocalDefault is the bundled placeholder image.
	CoverSourceLocalDefault CoverSourceID = "local_default"
)

// Record is the unified search result produced by a metadata client.
// Records are treated as immutable once built; the orchestrator attaches a
// cover by copying into a Result rather than mutating the record.
type Record struct {
	Title     string
	Authors   []string
	ISBN      isbn.ISBN
	Year      int // 0 when unknown
	Publisher string
	Genres    []string
	Pages     int    // 0 when unknown
	Language  string // ISO-ish code as reported by the provider

	// Source identifies the producing client. Title is non-empty
	// whenever Source is not SourceNone.
	Source SourceID
	// SourceRef is the provider-specific opaque identifier, when one
	// exists (e.g. an Open Library key or a national-library record id).
	SourceRef string

	// CoverURL is a cover reference embedded in the provider's metadata
	// response, when present. The orchestrator decides whether it wins
	// over dedicated cover lookups.
	CoverURL string
	// CoverID is the provider's numeric cover identifier, when the
	// provider exposes one (Open Library title search does).
	CoverID int
}

// Cover is the unified cover reference. URL is never empty when Source is
// not CoverSourceNone; the local default guarantees this for every
// completed resolution.
type Cover struct {
	URL    string
	Source CoverSourceID
}
