// Package metadata defines the uniform contract for external bibliographic
// catalogs and the clients implementing it.
package metadata

import (
	"context"
	"errors"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/isbn"
)

// DefaultSearchLimit bounds title searches when the caller passes no limit.
const DefaultSearchLimit = 10

// MaxSearchLimit is the hard cap on title search results per source.
const MaxSearchLimit = 20

var (
	// ErrInvalidISBN is returned when a client is called with a zero ISBN.
	// This is a contract violation, not a provider failure.
	ErrInvalidISBN = errors.New("invalid ISBN")
)

// Source is one external bibliographic catalog.
//
// SearchByISBN returns (nil, nil) when the catalog has no record for the
// ISBN; an error means the provider could not be consulted (network,
// non-2xx, malformed payload).
type Source interface {
	// Name returns the stable identifier of this catalog.
	Name() book.SourceID

	// SearchByISBN looks up a single record by canonical ISBN.
	SearchByISBN(ctx context.Context, id isbn.ISBN) (*book.Record, error)

	// SearchByTitle returns up to limit records matching the title. The
	// author is an optional narrowing hint. The result slice may be empty;
	// ordering is provider-defined.
	SearchByTitle(ctx context.Context, title, author string, limit int) ([]book.Record, error)
}

// ClampLimit applies the default and hard cap to a caller-supplied limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}
