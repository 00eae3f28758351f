package cover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/cache"
	"github.com/MarcinSachs/libriya/internal/ratelimit"
)

// Package-level variables so tests can point the client at a test server.
var (
	bookcoverBaseURL   = "https://bookcover.longitood.com/bookcover"
	bookcoverClient    *http.Client
	bookcoverOnce      sync.Once
	bookcoverClientNew = func() *http.Client {
		return &http.Client{Timeout: 5 * time.Second}
	}
)

// Bookcover is the premium per-title cover lookup client. It is only
// consulted when the feature gate reports the bookcover feature enabled
// for the current tenant.
type Bookcover struct{}

var _ Source = (*Bookcover)(nil)

// NewBookcover creates a new premium cover client.
func NewBookcover() *Bookcover {
	return &Bookcover{}
}

// Name returns the stable identifier of this provider.
func (b *Bookcover) Name() book.CoverSourceID {
	return book.CoverSourceBookcoverAPI
}

func getBookcoverClient() *http.Client {
	bookcoverOnce.Do(func() {
		bookcoverClient = bookcoverClientNew()
	})
	return bookcoverClient
}

type cachedBookcoverResult struct {
	URL      string `json:"url"`
	NotFound bool   `json:"not_found"`
}

// Lookup tries an ISBN lookup first, then falls back to title+author.
func (b *Bookcover) Lookup(ctx context.Context, req Request) (string, error) {
	if !req.ISBN.IsZero() {
		u, err := b.lookupCached(ctx, req.ISBN.Digits13(), b.isbnURL(req.ISBN.Digits13()))
		if err != nil {
			return "", err
		}
		if u != "" {
			return u, nil
		}
	}

	if req.Title != "" && req.Author != "" {
		key := "title:" + req.Title + "|" + req.Author
		return b.lookupCached(ctx, key, b.titleAuthorURL(req.Title, req.Author))
	}

	return "", nil
}

func (b *Bookcover) isbnURL(digits13 string) string {
	return fmt.Sprintf("%s/%s", bookcoverBaseURL, digits13)
}

func (b *Bookcover) titleAuthorURL(title, author string) string {
	params := url.Values{}
	params.Set("book_title", title)
	params.Set("author_name", author)
	return bookcoverBaseURL + "?" + params.Encode()
}

func (b *Bookcover) lookupCached(ctx context.Context, cacheKey, reqURL string) (string, error) {
	cached, _, err := cache.GetOrFetchWithTTL("bookcover_cache", cacheKey, func() (*cachedBookcoverResult, error) {
		return b.fetch(ctx, reqURL)
	}, cache.SelectNegativeTTL(func(r *cachedBookcoverResult) bool {
		return r.NotFound
	}))
	if err != nil {
		return "", err
	}
	if cached.NotFound {
		return "", nil
	}
	return cached.URL, nil
}

func (b *Bookcover) fetch(ctx context.Context, reqURL string) (*cachedBookcoverResult, error) {
	if err := ratelimit.ForProvider("Bookcover", 1).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := getBookcoverClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("bookcover request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return &cachedBookcoverResult{NotFound: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bookcover returned status %d", resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding bookcover response: %w", err)
	}

	if payload.URL == "" {
		return &cachedBookcoverResult{NotFound: true}, nil
	}
	return &cachedBookcoverResult{URL: payload.URL}, nil
}
