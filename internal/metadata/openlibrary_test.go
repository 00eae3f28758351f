package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcinSachs/libriya/internal/book"
	"github.com/MarcinSachs/libriya/internal/cache"
	"github.com/MarcinSachs/libriya/internal/isbn"
	"github.com/MarcinSachs/libriya/internal/testutil"
)

func setupClientTest(t *testing.T) {
	t.Helper()

	viper.Reset()
	env := testutil.NewTestEnv(t)
	viper.Set("cache.dbfile", env.Path("cache.db"))
	viper.Set("cache.ttl", "1h")
	require.NoError(t, cache.Reset())

	t.Cleanup(func() {
		_ = cache.Reset()
		viper.Reset()
	})
}

func withOpenLibraryServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	origURL := openLibraryBaseURL
	origClient := openLibraryHTTPClient
	openLibraryBaseURL = server.URL
	openLibraryClientOnce.Do(func() {})
	openLibraryHTTPClient = server.Client()

	t.Cleanup(func() {
		openLibraryBaseURL = origURL
		openLibraryHTTPClient = origClient
	})

	return server
}

func mustISBN(t *testing.T, raw string) isbn.ISBN {
	t.Helper()
	id, err := isbn.Normalize(raw)
	require.NoError(t, err)
	return id
}

func TestOpenLibrarySearchByISBN(t *testing.T) {
	setupClientTest(t)

	requests := 0
	withOpenLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/api/books", r.URL.Path)
		assert.Equal(t, "ISBN:9780545003957", r.URL.Query().Get("bibkeys"))

		fmt.Fprint(w, `{
			"ISBN:9780545003957": {
				"key": "/books/OL7944350M",
				"title": "The Hobbit",
				"authors": [{"name": "J.R.R. Tolkien"}],
				"publishers": [{"name": "Houghton Mifflin"}],
				"publish_date": "September 1937",
				"number_of_pages": 310,
				"cover": {"large": "https://covers.example/l.jpg", "medium": "https://covers.example/m.jpg"},
				"subjects": [{"name": "Fantasy"}, {"name": "Adventure"}],
				"languages": [{"key": "/languages/eng"}]
			}
		}`)
	}))

	client := NewOpenLibrary()
	rec, err := client.SearchByISBN(context.Background(), mustISBN(t, "978-0-545-00395-7"))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "The Hobbit", rec.Title)
	assert.Equal(t, []string{"J.R.R. Tolkien"}, rec.Authors)
	assert.Equal(t, "Houghton Mifflin", rec.Publisher)
	assert.Equal(t, 1937, rec.Year)
	assert.Equal(t, 310, rec.Pages)
	assert.Equal(t, "https://covers.example/l.jpg", rec.CoverURL)
	assert.Equal(t, []string{"Fantasy", "Adventure"}, rec.Genres)
	assert.Equal(t, "eng", rec.Language)
	assert.Equal(t, book.SourceOpenLibrary, rec.Source)
	assert.Equal(t, "/books/OL7944350M", rec.SourceRef)
	assert.Equal(t, "9780545003957", rec.ISBN.Digits13())

	// Second lookup must come from the cache.
	rec2, err := client.SearchByISBN(context.Background(), mustISBN(t, "9780545003957"))
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, rec.Title, rec2.Title)
	assert.Equal(t, 1, requests)
}

func TestOpenLibrarySearchByISBN_NotFound(t *testing.T) {
	setupClientTest(t)

	requests := 0
	withOpenLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{}`)
	}))

	client := NewOpenLibrary()
	rec, err := client.SearchByISBN(context.Background(), mustISBN(t, "9780306406157"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The miss is cached too.
	rec, err = client.SearchByISBN(context.Background(), mustISBN(t, "9780306406157"))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, requests)
}

func TestOpenLibrarySearchByISBN_ServerError(t *testing.T) {
	setupClientTest(t)

	withOpenLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	client := NewOpenLibrary()
	_, err := client.SearchByISBN(context.Background(), mustISBN(t, "9780306406157"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOpenLibrarySearchByISBN_ZeroISBN(t *testing.T) {
	setupClientTest(t)

	client := NewOpenLibrary()
	_, err := client.SearchByISBN(context.Background(), isbn.ISBN{})
	require.ErrorIs(t, err, ErrInvalidISBN)
}

func TestOpenLibrarySearchByTitle(t *testing.T) {
	setupClientTest(t)

	withOpenLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		assert.Equal(t, "hobbit", r.URL.Query().Get("title"))
		assert.Equal(t, "tolkien", r.URL.Query().Get("author"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		fmt.Fprint(w, `{
			"docs": [
				{"title": "The Hobbit", "author_name": ["J.R.R. Tolkien"], "first_publish_year": 1937, "isbn": ["9780545003957"], "cover_i": 123},
				{"title": "No ISBN Book", "author_name": ["Somebody"], "first_publish_year": 2001},
				{"title": "Bad ISBN Book", "author_name": ["Somebody"], "isbn": ["not-an-isbn"]},
				{"title": "The Hobbit Companion", "author_name": ["David Day"], "first_publish_year": 1997, "isbn": ["9780306406157"]}
			]
		}`)
	}))

	client := NewOpenLibrary()
	records, err := client.SearchByTitle(context.Background(), "hobbit", "tolkien", 5)
	require.NoError(t, err)

	// Docs without a valid ISBN are dropped.
	require.Len(t, records, 2)
	assert.Equal(t, "The Hobbit", records[0].Title)
	assert.Equal(t, 123, records[0].CoverID)
	assert.Equal(t, 1937, records[0].Year)
	assert.Equal(t, "9780545003957", records[0].ISBN.Digits13())
	assert.Equal(t, "The Hobbit Companion", records[1].Title)
}

func TestOpenLibrarySearchByTitle_ShortQuery(t *testing.T) {
	setupClientTest(t)

	client := NewOpenLibrary()
	records, err := client.SearchByTitle(context.Background(), "ab", "", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestOpenLibrarySearchByTitle_RespectsLimit(t *testing.T) {
	setupClientTest(t)

	withOpenLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"docs": [
				{"title": "Book One", "isbn": ["9780545003957"]},
				{"title": "Book Two", "isbn": ["9780306406157"]},
				{"title": "Book Three", "isbn": ["9780439420891"]}
			]
		}`)
	}))

	client := NewOpenLibrary()
	records, err := client.SearchByTitle(context.Background(), "book", "", 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultSearchLimit, ClampLimit(0))
	assert.Equal(t, DefaultSearchLimit, ClampLimit(-5))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxSearchLimit, ClampLimit(100))
}
