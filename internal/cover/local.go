package cover

import (
	"context"

	"github.com/MarcinSachs/libriya/internal/book"
)

// LocalDefault terminates the cover chain with the bundled placeholder
// image. Lookup never fails and never returns empty.
type LocalDefault struct {
	path string
}

var _ Source = (*LocalDefault)(nil)

// NewLocalDefault creates the terminal cover source serving the static
// asset at path.
func NewLocalDefault(path string) *LocalDefault {
	return &LocalDefault{path: path}
}

// Name returns the stable identifier of this provider.
func (l *LocalDefault) Name() book.CoverSourceID {
	return book.CoverSourceLocalDefault
}

// Lookup always resolves to the configured placeholder path.
func (l *LocalDefault) Lookup(ctx context.Context, req Request) (string, error) {
	return l.path, nil
}
