package cover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/ratelimit"
)

// Size selects the Open Library cover image variant.
type Size string

const (
	SizeSmall  Size = "S"
	SizeMedium Size = "M"
	SizeLarge  Size = "L"
)

// Package-level variables so tests can point the client at a test server.
var (
	openLibraryCoversBaseURL  = "https://covers.openlibrary.org/b"
	openLibraryBooksBaseURL   = "https://openlibrary.org"
	openLibraryCoverClient    *http.Client
	openLibraryCoverOnce      sync.Once
	openLibraryCoverClientNew = func() *http.Client {
		return &http.Client{Timeout: 5 * time.Second}
	}
)

// OpenLibraryCovers resolves covers from the Open Library covers endpoint,
// either directly by numeric cover identifier or by an ISBN lookup against
// the books API.
type OpenLibraryCovers struct {
	size Size
}

var _ Source = (*OpenLibraryCovers)(nil)

// NewOpenLibraryCovers creates a client requesting the given size variant.
func NewOpenLibraryCovers(size Size) *OpenLibraryCovers {
	if size == "" {
		size = SizeLarge
	}
	return &OpenLibraryCovers{size: size}
}

// Name returns the stable identifier of this provider.
func (o *OpenLibraryCovers) Name() book.CoverSourceID {
	return book.CoverSourceOpenLibrary
}

func getOpenLibraryCoverClient() *http.Client {
	openLibraryCoverOnce.Do(func() {
		openLibraryCoverClient = openLibraryCoverClientNew()
	})
	return openLibraryCoverClient
}

// URLForCoverID builds the covers-endpoint URL for a known numeric cover
// identifier. No network call is involved.
func (o *OpenLibraryCovers) URLForCoverID(coverID int) (string, error) {
	if coverID <= 0 {
		return "", fmt.Errorf("invalid cover ID: %d", coverID)
	}
	return fmt.Sprintf("%s/id/%d-%s.jpg", openLibraryCoversBaseURL, coverID, o.size), nil
}

// olCoverPayload is the slice of the books API response we care about.
type olCoverPayload struct {
	Cover struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
		Small  string `json:"small"`
	} `json:"cover"`
}

// Lookup queries the books API by ISBN and extracts the best available
// cover variant.
func (o *OpenLibraryCovers) Lookup(ctx context.Context, req Request) (string, error) {
	if req.ISBN.IsZero() {
		return "", nil
	}

	if err := ratelimit.ForProvider("OpenLibraryCovers", 1).Wait(ctx); err != nil {
		return "", err
	}

	bibkey := "ISBN:" + req.ISBN.Digits13()
	reqURL := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data", openLibraryBooksBaseURL, bibkey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := getOpenLibraryCoverClient().Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Open Library cover request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Open Library cover lookup returned status %d", resp.StatusCode)
	}

	var result map[string]olCoverPayload
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding Open Library cover response: %w", err)
	}

	payload, ok := result[bibkey]
	if !ok {
		return "", nil
	}

	switch {
	case payload.Cover.Large != "":
		return payload.Cover.Large, nil
	case payload.Cover.Medium != "":
		return payload.Cover.Medium, nil
	case payload.Cover.Small != "":
		return payload.Cover.Small, nil
	}
	return "", nil
}
