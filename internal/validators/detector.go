package validators

import (
	"github.com/abadojack/whatlanggo"
)

// WhatlangDetector detects languages with whatlanggo
type WhatlangDetector struct{}

// NewWhatlangDetector creates a detector backed by whatlanggo
func NewWhatlangDetector() *WhatlangDetector {
	return &WhatlangDetector{}
}

// Detect returns the ISO 639-1 code of the text language
func (WhatlangDetector) Detect(text string) (string, error) {
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", ErrUndetected
	}
	return code, nil
}
