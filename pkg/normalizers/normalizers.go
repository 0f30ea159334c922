// Package normalizers provides name normalization functions for entity resolution
package normalizers

import (
	"strings"
	"unicode"

	"github.com/pharmaintel/helix/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("remove_punctuation", RemovePunctuation)
	Register("ncompany", NormalizeCompanyName)
	Register("nname", NormalizeName)
	Register("digits_only", DigitsOnly)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ForEntity returns the normalizer used for a given entity type.
func ForEntity(entityType string) Normalizer {
	if entityType == models.EntityTypeCompany {
		return NormalizeCompanyName
	}
	return NormalizeName
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeName normalizes a drug, indication, or target name for matching
// - Lowercase
// - Remove punctuation
// - Collapse whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(s)

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '-' || r == '/' {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// NormalizeCompanyName normalizes a company name for matching
// - Lowercase
// - Remove punctuation and collapse whitespace
// - Remove trailing corporate designators (Inc, Corp, Ltd, ...)
func NormalizeCompanyName(s string) string {
	s = NormalizeName(s)

	suffixes := []string{
		" incorporated", " inc", " corporation", " corp", " company", " co",
		" limited", " ltd", " plc", " llc", " lp", " ag", " sa", " nv", " ab", " holdings",
	}
	for changed := true; changed; {
		changed = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(s, suffix) {
				s = strings.TrimSpace(s[:len(s)-len(suffix)])
				changed = true
			}
		}
	}

	return s
}

// DigitsOnly keeps only digit characters. Used for CIK comparison where
// sources zero-pad to ten digits.
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeCIK strips leading zeros from a CIK so padded and unpadded
// representations compare equal.
func NormalizeCIK(s string) string {
	digits := DigitsOnly(s)
	trimmed := strings.TrimLeft(digits, "0")
	if trimmed == "" && digits != "" {
		return "0"
	}
	return trimmed
}
