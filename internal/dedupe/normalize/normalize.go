// Package normalize canonicalizes record fields ahead of comparison.
// Normalization is deterministic and side-effect free: identical input always
// produces an identical NormalizedRecord, which reproducible matching and the
// blocking index both rely on.
package normalize

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	pstrings "registro/pkg/platform/strings"

	"registro/internal/dedupe/models"
	id "registro/pkg/domain"
)

// dateLayouts are the formats legacy source systems are known to emit.
// First match wins; output is always ISO 2006-01-02.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// foldDiacritics strips combining marks: "Peña" -> "Pena".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalizer derives canonical comparison values and blocking keys.
type Normalizer struct{}

func New() *Normalizer {
	return &Normalizer{}
}

// Normalize converts a validated record into its canonical form.
func (n *Normalizer) Normalize(rec models.Record) models.NormalizedRecord {
	switch rec.Type {
	case id.EntityTypeHousehold:
		if rec.Household != nil {
			return n.normalizeHousehold(*rec.Household)
		}
	case id.EntityTypeIndividual:
		if rec.Individual != nil {
			return n.normalizeIndividual(*rec.Individual)
		}
	}
	return models.NormalizedRecord{Type: rec.Type}
}

func (n *Normalizer) normalizeIndividual(attrs models.IndividualAttrs) models.NormalizedRecord {
	out := models.NormalizedRecord{Type: id.EntityTypeIndividual}

	out.FirstName = CanonicalName(attrs.FirstName)
	out.LastName = CanonicalName(attrs.LastName)
	middle := CanonicalName(attrs.MiddleName)
	out.FullName = joinNonEmpty(out.FirstName, middle, out.LastName)
	out.DisplayName = strings.TrimSpace(strings.Join(strings.Fields(
		strings.Join([]string{attrs.FirstName, attrs.MiddleName, attrs.LastName}, " ")), " "))

	out.PSN = strings.TrimSpace(string(attrs.PSN))
	out.BirthDate, out.BirthYear = CanonicalDate(attrs.BirthDate)
	out.Address = CanonicalAddress(attrs.Address)

	out.LastNamePhonetic = Soundex(out.LastName)
	out.FirstNamePhonetic = Soundex(out.FirstName)

	out.BlockingKeys = individualBlockingKeys(out)
	return out
}

func (n *Normalizer) normalizeHousehold(attrs models.HouseholdAttrs) models.NormalizedRecord {
	out := models.NormalizedRecord{Type: id.EntityTypeHousehold}

	head := CanonicalName(attrs.HeadName)
	out.FullName = head
	out.DisplayName = strings.TrimSpace(strings.Join(strings.Fields(attrs.HeadName), " "))
	// For matching purposes the head's surname is the trailing token.
	if fields := strings.Fields(head); len(fields) > 0 {
		out.LastName = fields[len(fields)-1]
		out.FirstName = fields[0]
	}

	out.HouseholdNumber = strings.ToUpper(strings.TrimSpace(string(attrs.HouseholdNumber)))
	out.Address = CanonicalAddress(attrs.Address)

	out.LastNamePhonetic = Soundex(out.LastName)
	out.FirstNamePhonetic = Soundex(out.FirstName)

	out.BlockingKeys = householdBlockingKeys(out)
	return out
}

// individualBlockingKeys composes the default blocking scheme: a strong exact
// key (PSN) plus cheap high-recall signatures (surname phonetic + birth year,
// first-name phonetic + birth year). Key composition is policy, not contract;
// recall of this step bounds the recall of the whole system.
func individualBlockingKeys(rec models.NormalizedRecord) []string {
	var keys []string
	if rec.PSN != "" {
		keys = append(keys, "psn:"+rec.PSN)
	}
	year := strconv.Itoa(rec.BirthYear)
	if rec.LastNamePhonetic != "" && rec.BirthYear > 0 {
		keys = append(keys, "snd:"+rec.LastNamePhonetic+":"+year)
	}
	if rec.FirstNamePhonetic != "" && rec.BirthYear > 0 {
		keys = append(keys, "fnd:"+rec.FirstNamePhonetic+":"+year)
	}
	if rec.LastNamePhonetic != "" && rec.BirthYear == 0 {
		// Sparse legacy rows often lack a birth date; fall back to the
		// phonetic alone so they stay discoverable.
		keys = append(keys, "snd:"+rec.LastNamePhonetic)
	}
	return pstrings.DedupeAndTrim(keys)
}

func householdBlockingKeys(rec models.NormalizedRecord) []string {
	var keys []string
	if rec.HouseholdNumber != "" {
		keys = append(keys, "hh:"+rec.HouseholdNumber)
	}
	if rec.LastNamePhonetic != "" {
		key := "hsnd:" + rec.LastNamePhonetic
		if tok := firstAddressToken(rec.Address); tok != "" {
			key += ":" + tok
		}
		keys = append(keys, key)
	}
	return pstrings.DedupeAndTrim(keys)
}

func firstAddressToken(address string) string {
	fields := strings.Fields(address)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// CanonicalName upper-cases, trims, folds diacritics, and collapses interior
// whitespace. Punctuation within names (hyphens, apostrophes) is dropped so
// "Dela-Cruz" and "Dela Cruz" compare equal.
func CanonicalName(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CanonicalAddress is CanonicalName plus common abbreviation expansion, so
// "123 Main St." and "123 Main Street" compare closer.
func CanonicalAddress(s string) string {
	canonical := CanonicalName(s)
	if canonical == "" {
		return ""
	}
	fields := strings.Fields(canonical)
	for i, f := range fields {
		if full, ok := addressAbbreviations[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}

var addressAbbreviations = map[string]string{
	"ST":   "STREET",
	"AVE":  "AVENUE",
	"RD":   "ROAD",
	"BLVD": "BOULEVARD",
	"BRGY": "BARANGAY",
	"BGY":  "BARANGAY",
	"HWY":  "HIGHWAY",
}

// CanonicalDate parses a date in any accepted layout, returning the ISO form
// and the year. Unparseable or empty input yields ("", 0); the matcher treats
// that as a missing field rather than an error.
func CanonicalDate(s string) (string, int) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", 0
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), t.Year()
		}
	}
	return "", 0
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
