package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/cache"
	"github.com/MarcinSachs/libriya/internal/isbn"
	"github.com/MarcinSachs/libriya/internal/ratelimit"
)

// Package-level variables so tests can point the client at a test server.
var (
	openLibraryBaseURL       = "https://openlibrary.org"
	openLibraryHTTPClient    *http.Client
	openLibraryClientOnce    sync.Once
	openLibraryHTTPClientNew = func() *http.Client {
		return &http.Client{Timeout: 10 * time.Second}
	}
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// OpenLibrary is the general-purpose open catalog client. It is the
// guaranteed fallback source and the only one consulted for title search.
type OpenLibrary struct{}

// Compile-time check that OpenLibrary implements Source.
var _ Source = (*OpenLibrary)(nil)

// NewOpenLibrary creates a new Open Library client.
func NewOpenLibrary() *OpenLibrary {
	return &OpenLibrary{}
}

// Name returns the stable identifier of this catalog.
func (o *OpenLibrary) Name() book.SourceID {
	return book.SourceOpenLibrary
}

func getOpenLibraryHTTPClient() *http.Client {
	openLibraryClientOnce.Do(func() {
		openLibraryHTTPClient = openLibraryHTTPClientNew()
	})
	return openLibraryHTTPClient
}

// cachedOpenLibraryRecord wraps a record with a not-found marker so misses
// can be cached with a shorter TTL.
type cachedOpenLibraryRecord struct {
	Record   *book.Record `json:"record"`
	NotFound bool         `json:"not_found"`
}

// openLibraryBookResponse matches the /api/books jscmd=data payload.
type openLibraryBookResponse struct {
	Key        string `json:"key"`
	Title      string `json:"title"`
	Publishers []struct {
		Name string `json:"name"`
	} `json:"publishers"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Cover struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
	} `json:"cover"`
	Subjects []struct {
		Name string `json:"name"`
	} `json:"subjects"`
	Languages []struct {
		Key string `json:"key"`
	} `json:"languages"`
	NumberOfPages int    `json:"number_of_pages"`
	PublishDate   string `json:"publish_date"`
}

// openLibrarySearchResponse matches the /search.json payload.
type openLibrarySearchResponse struct {
	Docs []struct {
		Title            string   `json:"title"`
		AuthorName       []string `json:"author_name"`
		FirstPublishYear int      `json:"first_publish_year"`
		ISBN             []string `json:"isbn"`
		CoverI           int      `json:"cover_i"`
	} `json:"docs"`
}

// SearchByISBN looks up a single record by canonical ISBN.
func (o *OpenLibrary) SearchByISBN(ctx context.Context, id isbn.ISBN) (*book.Record, error) {
	if id.IsZero() {
		return nil, ErrInvalidISBN
	}

	cached, _, err := cache.GetOrFetchWithTTL("openlibrary_cache", id.Digits13(), func() (*cachedOpenLibraryRecord, error) {
		return o.fetchByISBN(ctx, id)
	}, cache.SelectNegativeTTL(func(r *cachedOpenLibraryRecord) bool {
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

func (o *OpenLibrary) fetchByISBN(ctx context.Context, id isbn.ISBN) (*cachedOpenLibraryRecord, error) {
	if err := ratelimit.ForProvider("OpenLibrary", 1).Wait(ctx); err != nil {
		return nil, err
	}

	bibkey := "ISBN:" + id.Digits13()
	reqURL := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data", openLibraryBaseURL, bibkey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := getOpenLibraryHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("Open Library request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Open Library returned status %d", resp.StatusCode)
	}

	var result map[string]openLibraryBookResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding Open Library response: %w", err)
	}

	payload, ok := result[bibkey]
	if !ok || payload.Title == "" {
		return &cachedOpenLibraryRecord{NotFound: true}, nil
	}

	return &cachedOpenLibraryRecord{Record: parseOpenLibraryBook(payload, id)}, nil
}

func parseOpenLibraryBook(payload openLibraryBookResponse, id isbn.ISBN) *book.Record {
	rec := &book.Record{
		Title:     strings.TrimSpace(payload.Title),
		ISBN:      id,
		Pages:     payload.NumberOfPages,
		Source:    book.SourceOpenLibrary,
		SourceRef: payload.Key,
	}

	for _, a := range payload.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}

	if len(payload.Publishers) > 0 {
		rec.Publisher = strings.TrimSpace(payload.Publishers[0].Name)
	}

	if match := yearPattern.FindString(payload.PublishDate); match != "" {
		fmt.Sscanf(match, "%d", &rec.Year)
	}

	if payload.Cover.Large != "" {
		rec.CoverURL = payload.Cover.Large
	} else if payload.Cover.Medium != "" {
		rec.CoverURL = payload.Cover.Medium
	}

	for _, s := range payload.Subjects {
		if name := strings.TrimSpace(s.Name); name != "" {
			rec.Genres = append(rec.Genres, name)
		}
	}

	if len(payload.Languages) > 0 {
		// Language keys look like "/languages/eng".
		parts := strings.Split(payload.Languages[0].Key, "/")
		rec.Language = parts[len(parts)-1]
	}

	return rec
}

// SearchByTitle queries /search.json and keeps only docs carrying an ISBN,
// since downstream dedup and cover lookups key on the canonical ISBN-13.
func (o *OpenLibrary) SearchByTitle(ctx context.Context, title, author string, limit int) ([]book.Record, error) {
	title = strings.TrimSpace(title)
	if len(title) < 3 {
		return nil, nil
	}
	limit = ClampLimit(limit)

	if err := ratelimit.ForProvider("OpenLibrary", 1).Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("title", title)
	if author = strings.TrimSpace(author); author != "" {
		params.Set("author", author)
	}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("fields", "title,author_name,first_publish_year,isbn,cover_i")

	reqURL := fmt.Sprintf("%s/search.json?%s", openLibraryBaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := getOpenLibraryHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("Open Library search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Open Library search returned status %d", resp.StatusCode)
	}

	var result openLibrarySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding Open Library search response: %w", err)
	}

	records := make([]book.Record, 0, limit)
	for _, doc := range result.Docs {
		if len(records) >= limit {
			break
		}
		if len(doc.ISBN) == 0 || doc.Title == "" {
			continue
		}
		id, ok := firstValidISBN(doc.ISBN)
		if !ok {
			continue
		}
		records = append(records, book.Record{
			Title:   doc.Title,
			Authors: doc.AuthorName,
			ISBN:    id,
			Year:    doc.FirstPublishYear,
			Source:  book.SourceOpenLibrary,
			CoverID: doc.CoverI,
		})
	}

	return records, nil
}

// firstValidISBN returns the first entry of the doc's ISBN list that
// normalizes to a canonical ISBN-13.
func firstValidISBN(candidates []string) (isbn.ISBN, bool) {
	for _, raw := range candidates {
		if id, err := isbn.Normalize(raw); err == nil {
			return id, true
		}
	}
	return isbn.ISBN{}, false
}
