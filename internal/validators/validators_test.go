package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDetector struct {
	lang string
	err  error
}

func (f fakeDetector) Detect(string) (string, error) {
	return f.lang, f.err
}

func TestCheckName(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		valid bool
	}{
		{name: "digits only", input: "12345", valid: false},
		{name: "latin name", input: "Paracetamol", valid: true},
		{name: "cyrillic name", input: "Ібупрофен", valid: true},
		{name: "digits with letters", input: "Аспірин 500", valid: true},
		{name: "forbidden symbol", input: "Aspirin!", valid: false},
		{name: "slash", input: "Но/шпа", valid: false},
		{name: "arabic-indic digits", input: "١٢٣", valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, CheckName(tc.input))
			assert.Equal(t, tc.valid, CheckActiveIngredient(tc.input))
		})
	}
}

func TestCheckDescription(t *testing.T) {
	uk := fakeDetector{lang: "uk"}

	t.Run("too few words", func(t *testing.T) {
		result, ok := CheckDescription(uk, "uk", "Знеболювальний засіб")
		assert.False(t, ok)
		assert.Equal(t, TooFewWords, result)
	})

	t.Run("wrong language", func(t *testing.T) {
		result, ok := CheckDescription(fakeDetector{lang: "en"}, "uk", "Pain relief medicine for adults and children")
		assert.False(t, ok)
		assert.Equal(t, "en", result)
	})

	t.Run("detection failure is a rejection", func(t *testing.T) {
		result, ok := CheckDescription(fakeDetector{err: ErrUndetected}, "uk", "один два три чотири п'ять")
		assert.False(t, ok)
		assert.Equal(t, UnknownLanguage, result)
	})

	t.Run("valid description returned unchanged", func(t *testing.T) {
		text := "Нестероїдний протизапальний засіб для зняття болю"
		result, ok := CheckDescription(uk, "uk", text)
		assert.True(t, ok)
		assert.Equal(t, text, result)
	})
}
