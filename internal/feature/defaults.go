package feature

import (
	"github.com/MarcinSachs/libriya/internal/cover"
	"github.com/MarcinSachs/libriya/internal/metadata"
)

// Feature IDs of the optional providers shipped with the pipeline.
const (
	NationalLibraryID = "national_library"
	BookcoverAPIID    = "bookcover_api"
)

// DefaultBuilders maps the shipped feature IDs to their provider
// constructors.
func DefaultBuilders() map[string]BuildFunc {
	return map[string]BuildFunc{
		NationalLibraryID: func() (any, error) {
			return metadata.NewNationalLibrary(), nil
		},
		BookcoverAPIID: func() (any, error) {
			return cover.NewBookcover(), nil
		},
	}
}

// DefaultRegistry builds the registry with the shipped optional features.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builders := DefaultBuilders()

	r.MustRegister(Descriptor{
		ID:          NationalLibraryID,
		DisplayName: "National Library Catalog",
		Description: "Regional bibliographic records with MARC-derived genres",
	}, builders[NationalLibraryID])

	r.MustRegister(Descriptor{
		ID:          BookcoverAPIID,
		DisplayName: "Bookcover API",
		Description: "Premium per-title cover image lookup",
	}, builders[BookcoverAPIID])

	return r
}
