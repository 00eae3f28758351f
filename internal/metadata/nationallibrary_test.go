package metadata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcinSachs/libriya/internal/book"
)

func withNationalLibraryServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	origURL := nationalLibraryBaseURL
	origClient := nationalLibraryHTTPClient
	nationalLibraryBaseURL = server.URL
	nationalLibraryClientOnce.Do(func() {})
	nationalLibraryHTTPClient = server.Client()

	t.Cleanup(func() {
		nationalLibraryBaseURL = origURL
		nationalLibraryHTTPClient = origClient
	})

	return server
}

func TestNationalLibrarySearchByISBN(t *testing.T) {
	setupClientTest(t)

	withNationalLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9788375780635", r.URL.Query().Get("isbnIssn"))
		assert.Equal(t, "Libriya/1.0 (Book Management System)", r.Header.Get("User-Agent"))

		fmt.Fprint(w, `{
			"bibs": [{
				"id": "12345",
				"title": "Wiedźmin",
				"author": "Sapkowski, Andrzej",
				"publisher": "SuperNowa,",
				"publicationYear": "2014",
				"genre": "Fantastyka",
				"marc": {
					"fields": [
						{"100": {"subfields": [{"a": "Sapkowski, Andrzej"}, {"d": "(1948- )"}]}},
						{"245": {"subfields": [{"a": "Ostatnie życzenie /"}, {"b": "opowiadania :"}]}},
						{"260": {"subfields": [{"b": "SuperNowa,"}, {"c": "2014."}]}},
						{"380": {"subfields": [{"a": "Fantastyka"}]}},
						{"655": {"subfields": [{"a": "Opowiadania polskie"}]}},
						{"700": {"subfields": [{"a": "Kowalski, Jan (tłumacz)"}]}}
					]
				}
			}]
		}`)
	}))

	client := NewNationalLibrary()
	rec, err := client.SearchByISBN(context.Background(), mustISBN(t, "978-83-7578-063-5"))
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "Ostatnie życzenie : opowiadania", rec.Title)
	assert.Equal(t, []string{"Andrzej Sapkowski", "Jan Kowalski"}, rec.Authors)
	assert.Equal(t, 2014, rec.Year)
	assert.Equal(t, "SuperNowa", rec.Publisher)
	assert.Equal(t, []string{"Fantasy"}, rec.Genres)
	assert.Equal(t, book.SourceNationalLibrary, rec.Source)
	assert.Equal(t, "12345", rec.SourceRef)
}

func TestNationalLibrarySearchByISBN_NoBibs(t *testing.T) {
	setupClientTest(t)

	requests := 0
	withNationalLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"bibs": []}`)
	}))

	client := NewNationalLibrary()
	rec, err := client.SearchByISBN(context.Background(), mustISBN(t, "9780306406157"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	// The miss is cached.
	rec, err = client.SearchByISBN(context.Background(), mustISBN(t, "9780306406157"))
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, requests)
}

func TestNationalLibrarySearchByISBN_ServerError(t *testing.T) {
	setupClientTest(t)

	withNationalLibraryServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	client := NewNationalLibrary()
	_, err := client.SearchByISBN(context.Background(), mustISBN(t, "9780306406157"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNationalLibrarySearchByTitle_Unsupported(t *testing.T) {
	client := NewNationalLibrary()
	records, err := client.SearchByTitle(context.Background(), "wiedźmin", "", 10)
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestParseNationalLibraryBib_SimpleFieldFallback(t *testing.T) {
	bib := nationalLibraryBib{
		ID:              "678",
		Title:           "Pan Tadeusz",
		Publisher:       "Ossolineum, Wrocław",
		PublicationYear: "[1834]",
	}

	rec := parseNationalLibraryBib(bib, mustISBN(t, "9780306406157"))
	require.NotNil(t, rec)
	assert.Equal(t, "Pan Tadeusz", rec.Title)
	assert.Equal(t, 1834, rec.Year)
	assert.Equal(t, "Ossolineum", rec.Publisher)
}

func TestParseNationalLibraryBib_NoTitle(t *testing.T) {
	rec := parseNationalLibraryBib(nationalLibraryBib{ID: "1"}, mustISBN(t, "9780306406157"))
	assert.Nil(t, rec)
}

func TestParseMarcAuthor(t *testing.T) {
	tests := []struct {
		name string
		in   marcField
		want string
	}{
		{
			name: "last comma first",
			in:   marcField{Subfields: []map[string]string{{"a": "Tolkien, J.R.R."}}},
			want: "J.R.R Tolkien",
		},
		{
			name: "parenthesized dates stripped",
			in:   marcField{Subfields: []map[string]string{{"a": "Mickiewicz, Adam (1798-1855)"}}},
			want: "Adam Mickiewicz",
		},
		{
			name: "no comma kept as is",
			in:   marcField{Subfields: []map[string]string{{"a": "Homer"}}},
			want: "Homer",
		},
		{
			name: "too short dropped",
			in:   marcField{Subfields: []map[string]string{{"a": "X."}}},
			want: "",
		},
		{
			name: "no subfield a",
			in:   marcField{Subfields: []map[string]string{{"d": "(1900- )"}}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseMarcAuthor(tt.in))
		})
	}
}

func TestExtractMarcAuthors_CapsAtThree(t *testing.T) {
	fields := []map[string]marcField{
		{"100": {Subfields: []map[string]string{{"a": "One, Author"}}}},
		{"700": {Subfields: []map[string]string{{"a": "Two, Author"}}}},
		{"700": {Subfields: []map[string]string{{"a": "Three, Author"}}}},
		{"700": {Subfields: []map[string]string{{"a": "Four, Author"}}}},
	}

	authors := extractMarcAuthors(fields)
	assert.Len(t, authors, 3)
	assert.Equal(t, []string{"Author One", "Author Two", "Author Three"}, authors)
}
