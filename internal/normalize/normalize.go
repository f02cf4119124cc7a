// Package normalize canonicalizes raw facility names into comparable keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownKey is the sentinel produced for empty or blank input. Records
// carrying it still resolve to their own singleton site rather than
// being dropped.
const UnknownKey = "unknown"

// abbreviations expands common facility-name shorthand before suffix
// stripping so that "Natl Univ Hosp" and "National University Hospital"
// normalize identically.
var abbreviations = map[string]string{
	"hosp":  "hospital",
	"univ":  "university",
	"natl":  "national",
	"med":   "medical",
	"ctr":   "center",
	"inst":  "institute",
	"dept":  "department",
	"gen":   "general",
	"intl":  "international",
	"clin":  "clinic",
	"st":    "saint",
	"mt":    "mount",
	"rsrch": "research",
}

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Key produces the normalized comparison key for a raw facility name:
// lower-cased, diacritics folded, punctuation stripped, abbreviations
// expanded, whitespace collapsed. Pure and deterministic.
func Key(name string) string {
	folded, _, err := transform.String(foldDiacritics, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for i, tok := range tokens {
		if full, ok := abbreviations[tok]; ok {
			tokens[i] = full
		}
	}
	if len(tokens) == 0 {
		return UnknownKey
	}
	return strings.Join(tokens, " ")
}

// CountryKey normalizes a country string for index partitioning. Unlike
// facility names no suffix handling applies; an empty country gets the
// sentinel so cross-country collisions stay impossible.
func CountryKey(country string) string {
	folded, _, err := transform.String(foldDiacritics, country)
	if err != nil {
		folded = country
	}
	key := strings.Join(strings.Fields(strings.ToLower(folded)), " ")
	if key == "" {
		return UnknownKey
	}
	return key
}
