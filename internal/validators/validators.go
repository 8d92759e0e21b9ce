// Package validators classifies free-text answers collected during drug entry.
package validators

import (
	"errors"
	"strings"
	"unicode"
)

// ForbiddenSymbols may not appear in a drug name or active ingredient
const ForbiddenSymbols = "!@#$%^&*+?_=<>/"

// MinDescriptionWords is the minimum number of words in a description
const MinDescriptionWords = 5

// Results returned by CheckDescription for rejected descriptions
const (
	TooFewWords     = "too few words"
	UnknownLanguage = "unknown language"
)

// ErrUndetected is returned by a Detector that could not classify the text
var ErrUndetected = errors.New("language not detected")

// Detector identifies the language of a text as an ISO 639-1 code
type Detector interface {
	Detect(text string) (string, error)
}

// CheckName reports whether s is acceptable as a drug name:
// not made of digits only and free of forbidden symbols.
func CheckName(s string) bool {
	return !isDigits(s) && !strings.ContainsAny(s, ForbiddenSymbols)
}

// CheckActiveIngredient applies the same rule as CheckName
func CheckActiveIngredient(s string) bool {
	return CheckName(s)
}

// CheckDescription returns (s, true) when the description has enough words
// and is written in the target language. Otherwise it returns TooFewWords,
// the detected language code, or UnknownLanguage when detection failed.
func CheckDescription(d Detector, target, s string) (string, bool) {
	if len(strings.Fields(s)) < MinDescriptionWords {
		return TooFewWords, false
	}
	lang, err := d.Detect(s)
	if err != nil {
		return UnknownLanguage, false
	}
	if lang != target {
		return lang, false
	}
	return s, true
}

// isDigits mirrors str.isdigit: non-empty and every rune a digit
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
