package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/cache"
	"github.com/MarcinSachs/libriya/internal/isbn"
	"github.com/MarcinSachs/libriya/internal/ratelimit"
)

const nationalLibraryUserAgent = "Libriya/1.0 (Book Management System)"

// maxNationalLibraryAuthors caps how many contributors are kept per record;
// beyond that the MARC 700 fields are usually translators and editors.
const maxNationalLibraryAuthors = 3

// Package-level variables so tests can point the client at a test server.
var (
	nationalLibraryBaseURL       = "https://data.bn.org.pl/api/institutions/bibs.json"
	nationalLibraryHTTPClient    *http.Client
	nationalLibraryClientOnce    sync.Once
	nationalLibraryHTTPClientNew = func() *http.Client {
		return &http.Client{Timeout: 10 * time.Second}
	}
)

var (
	parenthesizedTail = regexp.MustCompile(`\s*\([^)]*\)\s*$`)
	collapseSpaces    = regexp.MustCompile(`\s+`)
)

// NationalLibrary is the optional regional catalog client. It is a premium
// source: the orchestrator only consults it when the feature gate allows.
// The catalog publishes no cover images, so covers always come from the
// cover chain.
type NationalLibrary struct{}

var _ Source = (*NationalLibrary)(nil)

// NewNationalLibrary creates a new national-library catalog client.
func NewNationalLibrary() *NationalLibrary {
	return &NationalLibrary{}
}

// Name returns the stable identifier of this catalog.
func (n *NationalLibrary) Name() book.SourceID {
	return book.SourceNationalLibrary
}

func getNationalLibraryHTTPClient() *http.Client {
	nationalLibraryClientOnce.Do(func() {
		nationalLibraryHTTPClient = nationalLibraryHTTPClientNew()
	})
	return nationalLibraryHTTPClient
}

type cachedNationalLibraryRecord struct {
	Record   *book.Record `json:"record"`
	NotFound bool         `json:"not_found"`
}

// marcField is one tagged MARC field; the API nests subfield code/value
// pairs as single-key objects.
type marcField struct {
	Subfields []map[string]string `json:"subfields"`
}

type nationalLibraryBib struct {
	ID              string                          `json:"id"`
	Title           string                          `json:"title"`
	Author          string                          `json:"author"`
	Publisher       string                          `json:"publisher"`
	PublicationYear string                          `json:"publicationYear"`
	Genre           string                          `json:"genre"`
	FormOfWork      string                          `json:"formOfWork"`
	Domain          string                          `json:"domain"`
	Kind            string                          `json:"kind"`
	Marc            struct {
		Fields []map[string]marcField `json:"fields"`
	} `json:"marc"`
}

type nationalLibraryResponse struct {
	Bibs []nationalLibraryBib `json:"bibs"`
}

// SearchByISBN looks up a single record by canonical ISBN.
func (n *NationalLibrary) SearchByISBN(ctx context.Context, id isbn.ISBN) (*book.Record, error) {
	if id.IsZero() {
		return nil, ErrInvalidISBN
	}

	cached, _, err := cache.GetOrFetchWithTTL("national_library_cache", id.Digits13(), func() (*cachedNationalLibraryRecord, error) {
		return n.fetchByISBN(ctx, id)
	}, cache.SelectNegativeTTL(func(r *cachedNationalLibraryRecord) bool {
		return r.NotFound
	}))
	if err != nil {
		return nil, err
	}
	if cached.NotFound {
		return nil, nil
	}
	return cached.Record, nil
}

func (n *NationalLibrary) fetchByISBN(ctx context.Context, id isbn.ISBN) (*cachedNationalLibraryRecord, error) {
	if err := ratelimit.ForProvider("NationalLibrary", 1).Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("isbnIssn", id.Digits13())
	reqURL := nationalLibraryBaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", nationalLibraryUserAgent)

	resp, err := getNationalLibraryHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("national library request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("national library returned status %d", resp.StatusCode)
	}

	var result nationalLibraryResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding national library response: %w", err)
	}

	if len(result.Bibs) == 0 {
		return &cachedNationalLibraryRecord{NotFound: true}, nil
	}

	rec := parseNationalLibraryBib(result.Bibs[0], id)
	if rec == nil {
		// Record without a usable title is treated as a miss.
		return &cachedNationalLibraryRecord{NotFound: true}, nil
	}
	return &cachedNationalLibraryRecord{Record: rec}, nil
}

// SearchByTitle is unsupported: the catalog's title search is not precise
// enough to be useful, so title queries go to the general catalog only.
func (n *NationalLibrary) SearchByTitle(ctx context.Context, title, author string, limit int) ([]book.Record, error) {
	return nil, nil
}

func parseNationalLibraryBib(bib nationalLibraryBib, id isbn.ISBN) *book.Record {
	fields := bib.Marc.Fields

	title := extractMarcTitle(fields)
	if title == "" {
		title = strings.TrimSpace(bib.Title)
	}
	if title == "" {
		return nil
	}

	year := extractMarcYear(fields)
	if year == 0 {
		if match := yearPattern.FindString(bib.PublicationYear); match != "" {
			fmt.Sscanf(match, "%d", &year)
		}
	}

	publisher := extractMarcPublisher(fields)
	if publisher == "" {
		publisher = cleanPublisher(bib.Publisher)
	}

	return &book.Record{
		Title:     title,
		Authors:   extractMarcAuthors(fields),
		ISBN:      id,
		Year:      year,
		Publisher: publisher,
		Genres:    extractGenres(bib),
		Source:    book.SourceNationalLibrary,
		SourceRef: bib.ID,
	}
}

// extractMarcTitle builds the title from MARC field 245, joining the main
// title (subfield a) and remainder (subfield b).
func extractMarcTitle(fields []map[string]marcField) string {
	for _, fieldDict := range fields {
		f, ok := fieldDict["245"]
		if !ok {
			continue
		}
		var parts []string
		for _, sub := range f.Subfields {
			if v, ok := sub["a"]; ok {
				parts = append(parts, strings.TrimRight(v, "/:; "))
			} else if v, ok := sub["b"]; ok {
				parts = append(parts, strings.TrimRight(v, "/:; "))
			}
		}
		if len(parts) > 0 {
			title := strings.Join(parts, " : ")
			return strings.TrimSpace(collapseSpaces.ReplaceAllString(title, " "))
		}
	}
	return ""
}

// extractMarcAuthors collects authors from field 100 (main entry) and 700
// (added entries).
func extractMarcAuthors(fields []map[string]marcField) []string {
	var authors []string
	for _, fieldDict := range fields {
		for _, tag := range []string{"100", "700"} {
			f, ok := fieldDict[tag]
			if !ok {
				continue
			}
			if name := parseMarcAuthor(f); name != "" {
				authors = append(authors, name)
			}
		}
	}
	if len(authors) > maxNationalLibraryAuthors {
		authors = authors[:maxNationalLibraryAuthors]
	}
	return authors
}

// parseMarcAuthor extracts subfield a, strips trailing dates and flips
// "LastName, FirstName" into display order.
func parseMarcAuthor(f marcField) string {
	var parts []string
	for _, sub := range f.Subfields {
		if v, ok := sub["a"]; ok {
			parts = append(parts, strings.TrimRight(v, ",. "))
		}
	}
	if len(parts) == 0 {
		return ""
	}

	author := strings.Join(parts, " ")
	author = strings.TrimSpace(parenthesizedTail.ReplaceAllString(author, ""))

	if idx := strings.Index(author, ","); idx >= 0 {
		segments := strings.SplitN(author, ",", 2)
		if len(segments) == 2 {
			author = strings.TrimSpace(segments[1]) + " " + strings.TrimSpace(segments[0])
		}
	}

	if len(author) <= 2 {
		return ""
	}
	return author
}

// extractMarcYear reads the publication date from field 260 subfield c.
func extractMarcYear(fields []map[string]marcField) int {
	for _, fieldDict := range fields {
		f, ok := fieldDict["260"]
		if !ok {
			continue
		}
		for _, sub := range f.Subfields {
			if v, ok := sub["c"]; ok {
				if match := yearPattern.FindString(v); match != "" {
					var year int
					fmt.Sscanf(match, "%d", &year)
					return year
				}
			}
		}
	}
	return 0
}

// extractMarcPublisher reads the publisher from field 260 subfield b.
func extractMarcPublisher(fields []map[string]marcField) string {
	for _, fieldDict := range fields {
		f, ok := fieldDict["260"]
		if !ok {
			continue
		}
		for _, sub := range f.Subfields {
			if v, ok := sub["b"]; ok {
				if publisher := strings.TrimRight(v, "., "); publisher != "" {
					return publisher
				}
			}
		}
	}
	return ""
}

func cleanPublisher(raw string) string {
	publisher := strings.TrimSpace(raw)
	publisher = strings.TrimRight(publisher, ", ")
	if idx := strings.Index(publisher, ","); idx >= 0 {
		publisher = strings.TrimSpace(publisher[:idx])
	}
	return publisher
}

// extractGenres gathers subject/type terms from the simple fields and MARC
// fields 380 (form of work) and 655 (genre/form), then maps them through
// the catalog-to-application genre table. Unmapped terms are dropped.
func extractGenres(bib nationalLibraryBib) []string {
	var terms []string

	// The simple fields hold comma-separated term lists. Terms themselves
	// may be multi-word ("literatura dziecięca"), so only commas split.
	for _, field := range []string{bib.Genre, bib.FormOfWork, bib.Domain, bib.Kind} {
		for _, part := range strings.Split(strings.ToLower(field), ",") {
			if part = strings.TrimSpace(part); len(part) > 1 {
				terms = append(terms, part)
			}
		}
	}

	for _, fieldDict := range bib.Marc.Fields {
		for _, tag := range []string{"380", "655"} {
			f, ok := fieldDict[tag]
			if !ok {
				continue
			}
			for _, sub := range f.Subfields {
				if v, ok := sub["a"]; ok {
					term := strings.TrimRight(strings.ToLower(strings.TrimSpace(v)), ".,")
					if len(term) > 1 {
						terms = append(terms, term)
					}
				}
			}
		}
	}

	genres := map[string]bool{}
	for _, term := range terms {
		if genre, ok := mapCatalogTerm(term); ok {
			genres[genre] = true
		}
	}

	result := make([]string, 0, len(genres))
	for g := range genres {
		result = append(result, g)
	}
	sort.Strings(result)
	return result
}
