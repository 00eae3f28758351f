// Package isbn validates and normalizes ISBN-10 and ISBN-13 identifiers.
//
// All lookups elsewhere in the pipeline operate on the canonical 13-digit
// form, so Normalize is the single entry point: it strips formatting,
// verifies the check digit and converts ISBN-10 input to its ISBN-13
// equivalent. Everything here is pure and safe for concurrent use.
package isbn

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFormat is returned when the input is not a checksum-valid
// ISBN-10 or ISBN-13.
var ErrInvalidFormat = errors.New("invalid ISBN format")

// ISBN is a validated identifier in canonical 13-digit form.
// The zero value is not valid; construct via Normalize.
type ISBN struct {
	digits13 string
}

// Normalize strips hyphens and whitespace, validates the check digit and
// returns the canonical ISBN-13 representation. ISBN-10 input is converted
// with the 978 prefix and a recomputed check digit.
func Normalize(raw string) (ISBN, error) {
	cleaned := clean(raw)

	switch len(cleaned) {
	case 10:
		if !validISBN10(cleaned) {
			return ISBN{}, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
		}
		return ISBN{digits13: toISBN13(cleaned)}, nil
	case 13:
		if !validISBN13(cleaned) {
			return ISBN{}, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
		}
		return ISBN{digits13: cleaned}, nil
	default:
		return ISBN{}, fmt.Errorf("%w: %q", ErrInvalidFormat, raw)
	}
}

// Digits13 returns the canonical 13-digit form without separators.
func (i ISBN) Digits13() string {
	return i.digits13
}

// String implements fmt.Stringer.
func (i ISBN) String() string {
	return i.digits13
}

// IsZero reports whether the value was never populated by Normalize.
func (i ISBN) IsZero() bool {
	return i.digits13 == ""
}

// Formatted returns the hyphenated display form, e.g. "978-0-545-00395-7".
func (i ISBN) Formatted() string {
	if len(i.digits13) != 13 {
		return i.digits13
	}
	d := i.digits13
	return fmt.Sprintf("%s-%s-%s-%s-%s", d[0:3], d[3:4], d[4:7], d[7:12], d[12:13])
}

// IsValid reports whether raw is a checksum-valid ISBN-10 or ISBN-13.
func IsValid(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

// clean removes hyphens and whitespace and uppercases a trailing x.
func clean(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == 'x' || r == 'X':
			b.WriteByte('X')
		case r == '-' || r == ' ':
			// separator, skip
		default:
			// Anything else invalidates the input; keep it so the
			// length check fails naturally.
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validISBN10 checks the weighted-sum-mod-11 check digit. The last
// position may be 'X', representing the check value 10.
func validISBN10(s string) bool {
	total := 0
	for i := 0; i < 9; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return false
		}
		total += (10 - i) * int(d-'0')
	}

	check := (11 - total%11) % 11
	last := s[9]
	if check == 10 {
		return last == 'X'
	}
	return last == byte('0'+check)
}

// validISBN13 checks the alternating 1/3-weighted sum mod 10.
func validISBN13(s string) bool {
	total := 0
	for i := 0; i < 12; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return false
		}
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		total += weight * int(d-'0')
	}

	last := s[12]
	if last < '0' || last > '9' {
		return false
	}
	check := (10 - total%10) % 10
	return last == byte('0'+check)
}

// toISBN13 converts a validated ISBN-10 to ISBN-13: prefix 978, drop the
// old check digit, recompute the new one.
func toISBN13(s string) string {
	base := "978" + s[:9]
	total := 0
	for i := 0; i < 12; i++ {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		total += weight * int(base[i]-'0')
	}
	check := (10 - total%10) % 10
	return base + string(byte('0'+check))
}
