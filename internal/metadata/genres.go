package metadata

import "strings"

// catalogTermToGenre maps the national catalog's subject and form-of-work
// vocabulary onto the application's genre list. Terms missing from the
// table are dropped silently.
var catalogTermToGenre = map[string]string{
	// Fiction
	"beletrystyka":           "Fiction",
	"powieść":                "Fiction",
	"opowiadanie":            "Fiction",
	"utwór literacki":        "Fiction",
	"literatura artystyczna": "Fiction",
	"science fiction":        "Fiction",

	// Fantasy
	"fantastyka": "Fantasy",

	// Romance
	"romans": "Romance / Contemporary",

	// Crime / Thriller
	"kryminał": "Crime / Thriller",
	"thriller": "Crime / Thriller",

	// Children / Young Adult
	"literatura dziecięca":  "Children",
	"literatura młodzieżowa": "Young Adult",

	// Poetry / Drama
	"drama":  "Poetry / Drama",
	"dramat": "Poetry / Drama",
	"poemat": "Poetry / Drama",
	"wiersze": "Poetry / Drama",
	"poezja": "Poetry / Drama",

	// Non-fiction, general
	"poradnik":   "Business / Self-Help",
	"podręcznik": "Manual / Education",
	"przewodnik": "Guide / Hobby",

	// Academic
	"publikacja naukowa": "Scientific / Academic",
	"monografia":         "Scientific / Academic",
	"akademicka":         "Scientific / Academic",
	"nauka":              "Scientific / Academic",
	"przyrodoznawstwo":   "Scientific / Academic",

	// Reference
	"słownik":      "Manual / Education",
	"encyklopedia": "Manual / Education",

	// Biography / memoir / history
	"biografia":     "Non-fiction",
	"autobiografia": "Non-fiction",
	"wspomnienia":   "Non-fiction",
	"historia":      "Non-fiction",
	"archeologia":   "Non-fiction",
	"publicystyka":  "Non-fiction",
	"esej":          "Non-fiction",

	// Art / culture
	"sztuka": "Culture / Art",
}

// mapCatalogTerm resolves one lowercased catalog term to an application
// genre. Exact match first, then a containment match so inflected catalog
// forms ("kryminały", "powieść historyczna") still resolve. Only the term
// may contain a key, never the other way around; a fragment must not match
// a longer multi-word key.
func mapCatalogTerm(term string) (string, bool) {
	if genre, ok := catalogTermToGenre[term]; ok {
		return genre, true
	}
	for key, genre := range catalogTermToGenre {
		if strings.Contains(term, key) {
			return genre, true
		}
	}
	return "", false
}
