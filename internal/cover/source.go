// Package cover defines the uniform contract for cover-image providers.
// Clients return a URL reference only; downloading and persisting bytes is
// the coverstore package's job.
package cover

import (
	"context"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/isbn"
)

// Request carries the identifiers a provider may search by. Providers
// ignore fields they cannot use.
type Request struct {
	ISBN   isbn.ISBN
	Title  string
	Author string
}

// Source is one external cover-image provider.
//
// Lookup returns ("", nil) when the provider has no cover; an error means
// the provider could not be consulted. Callers treat both as "try the next
// provider in the chain".
type Source interface {
	// Name returns the stable identifier of this provider.
	Name() book.CoverSourceID

	// Lookup resolves a cover image URL for the request.
	Lookup(ctx context.Context, req Request) (string, error)
}
