// Package resolve sequences the metadata and cover clients into one
// resolution pipeline. A resolution request walks MetadataLookup then
// CoverLookup; provider failures are logged and treated as misses, so the
// pipeline always finishes with a composite result.
package resolve

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/config"
	"github.com/MarcinSachs/libriya/internal/cover"
	"github.com/MarcinSachs/libriya/internal/feature"
	"github.com/MarcinSachs/libriya/internal/isbn"
	"github.com/MarcinSachs/libriya/internal/metadata"
)

// minTitleQueryLength is the shortest title accepted for a title search.
const minTitleQueryLength = 3

// Result is the composite outcome of one resolution.
type Result struct {
	Record *book.Record
	Cover  book.Cover
}

// Orchestrator wires the always-available general catalog with the
// gate-controlled optional providers.
type Orchestrator struct {
	gate          *feature.Gate
	general       metadata.Source
	generalCovers cover.Source
	localDefault  cover.Source
}

// New creates an orchestrator over the default provider set. The local
// default cover path is read from configuration at construction time.
func New(gate *feature.Gate) *Orchestrator {
	return &Orchestrator{
		gate:          gate,
		general:       metadata.NewOpenLibrary(),
		generalCovers: cover.NewOpenLibraryCovers(cover.SizeLarge),
		localDefault:  cover.NewLocalDefault(config.DefaultCoverPath),
	}
}

// NewWithSources creates an orchestrator with explicit providers.
func NewWithSources(gate *feature.Gate, general metadata.Source, generalCovers, localDefault cover.Source) *Orchestrator {
	return &Orchestrator{
		gate:          gate,
		general:       general,
		generalCovers: generalCovers,
		localDefault:  localDefault,
	}
}

// ByISBN resolves a single raw ISBN to metadata plus a cover. The raw
// value is normalized first; isbn.ErrInvalidFormat is the only error this
// method returns. A nil result with a nil error means no catalog had a
// record, in which case no cover lookup is attempted.
func (o *Orchestrator) ByISBN(ctx context.Context, rawISBN string, tenant feature.Tenant) (*Result, error) {
	id, err := isbn.Normalize(rawISBN)
	if err != nil {
		return nil, err
	}

	record := o.metadataByISBN(ctx, id, tenant)
	if record == nil {
		slog.Info("No metadata found", "isbn", id.Formatted())
		return nil, nil
	}

	return &Result{
		Record: record,
		Cover:  o.resolveCover(ctx, record, tenant),
	}, nil
}

// ByTitle resolves a free-text title query to a deduplicated result list,
// each entry carrying its own cover. Queries shorter than three characters
// return no results. The author is an optional narrowing hint.
func (o *Orchestrator) ByTitle(ctx context.Context, title, author string, limit int, tenant feature.Tenant) ([]Result, error) {
	title = strings.TrimSpace(title)
	if len([]rune(title)) < minTitleQueryLength {
		return nil, nil
	}
	limit = metadata.ClampLimit(limit)

	seen := map[string]bool{}
	results := make([]Result, 0, limit)

	for _, src := range o.metadataSources(ctx, tenant) {
		records, err := src.SearchByTitle(ctx, title, author, limit)
		if err != nil {
			slog.Warn("Title search failed, skipping source",
				"source", src.Name(), "title", title, "error", err)
			continue
		}

		for i := range records {
			if len(results) >= limit {
				return results, nil
			}
			record := &records[i]
			if key := record.ISBN.Digits13(); key != "" {
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			results = append(results, Result{
				Record: record,
				Cover:  o.resolveCover(ctx, record, tenant),
			})
		}
	}

	return results, nil
}

// metadataSources returns the catalogs to consult, in priority order: the
// regional catalog first when its feature is enabled for the tenant, then
// the general catalog as the guaranteed fallback.
func (o *Orchestrator) metadataSources(ctx context.Context, tenant feature.Tenant) []metadata.Source {
	sources := make([]metadata.Source, 0, 2)
	if regional, ok := o.gate.MetadataSource(ctx, feature.NationalLibraryID, tenant); ok {
		sources = append(sources, regional)
	}
	return append(sources, o.general)
}

// metadataByISBN walks the catalogs in priority order and stops at the
// first hit. Each catalog is consulted at most once; a failing catalog is
// logged and treated as a miss.
func (o *Orchestrator) metadataByISBN(ctx context.Context, id isbn.ISBN, tenant feature.Tenant) *book.Record {
	for _, src := range o.metadataSources(ctx, tenant) {
		record, err := src.SearchByISBN(ctx, id)
		if err != nil {
			slog.Warn("Metadata lookup failed, trying next source",
				"source", src.Name(), "isbn", id.Formatted(), "error", err)
			continue
		}
		if record != nil {
			return record
		}
	}
	return nil
}

// coverAttempt is one step of the cover fallback chain.
type coverAttempt struct {
	source book.CoverSourceID
	lookup func() (string, error)
}

// resolveCover walks the cover chain for one record and always produces a
// cover. Chain order is embedded cover, premium client, general catalog
// cover endpoint, local default; configuration may move the premium client
// ahead of the embedded cover.
func (o *Orchestrator) resolveCover(ctx context.Context, record *book.Record, tenant feature.Tenant) book.Cover {
	req := cover.Request{
		ISBN:  record.ISBN,
		Title: record.Title,
	}
	if len(record.Authors) > 0 {
		req.Author = record.Authors[0]
	}

	embedded := coverAttempt{
		source: book.CoverSourceOpenLibrary,
		lookup: func() (string, error) { return o.embeddedCoverURL(record) },
	}

	attempts := []coverAttempt{embedded}
	if premium, ok := o.gate.CoverSource(ctx, feature.BookcoverAPIID, tenant); ok {
		attempt := coverAttempt{
			source: premium.Name(),
			lookup: func() (string, error) { return premium.Lookup(ctx, req) },
		}
		if config.PremiumCoversFirst {
			attempts = []coverAttempt{attempt, embedded}
		} else {
			attempts = append(attempts, attempt)
		}
	}
	attempts = append(attempts, coverAttempt{
		source: o.generalCovers.Name(),
		lookup: func() (string, error) { return o.generalCovers.Lookup(ctx, req) },
	})

	for _, attempt := range attempts {
		url, err := attempt.lookup()
		if err != nil {
			slog.Warn("Cover lookup failed, trying next source",
				"source", attempt.source, "isbn", record.ISBN.Formatted(), "error", err)
			continue
		}
		if url != "" {
			return book.Cover{URL: url, Source: attempt.source}
		}
	}

	url, _ := o.localDefault.Lookup(ctx, req)
	return book.Cover{URL: url, Source: o.localDefault.Name()}
}

// embeddedCoverURL extracts a cover reference already present in the
// metadata record, either a direct URL or a numeric cover identifier.
func (o *Orchestrator) embeddedCoverURL(record *book.Record) (string, error) {
	if record.CoverURL != "" {
		return record.CoverURL, nil
	}
	if record.CoverID > 0 {
		if byID, ok := o.generalCovers.(*cover.OpenLibraryCovers); ok {
			return byID.URLForCoverID(record.CoverID)
		}
	}
	return "", nil
}
