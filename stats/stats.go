// Package stats computes descriptive text statistics over extracted document
// text.
package stats

import (
	"unicode"
	"unicode/utf8"
)

// Statistics holds the counts reported for one analyzed document.
type Statistics struct {
	CharCount        int `json:"char_count"`
	CharCountNoSpace int `json:"char_count_no_space"`
	WordCount        int `json:"word_count"`
	SpaceCount       int `json:"space_count"`
	ImageCount       int `json:"image_count"`
}

// IsSpace reports whether r is whitespace for counting purposes: any code
// point with the Unicode White_Space property.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r)
}

// Calculate counts characters, whitespace and words in text. Characters are
// Unicode code points, not bytes. A word is a maximal run of non-whitespace
// code points. ImageCount is left zero; see WithImages.
func Calculate(text string) Statistics {
	var s Statistics
	inWord := false
	for _, r := range text {
		if IsSpace(r) {
			s.SpaceCount++
			inWord = false
			continue
		}
		if !inWord {
			s.WordCount++
			inWord = true
		}
	}
	s.CharCount = utf8.RuneCountInString(text)
	s.CharCountNoSpace = s.CharCount - s.SpaceCount
	return s
}

// WithImages returns a copy of s carrying the given image count.
func (s Statistics) WithImages(n int) Statistics {
	if n < 0 {
		n = 0
	}
	s.ImageCount = n
	return s
}

// Vector returns the statistics as a fixed-order float vector
// (chars, chars without spaces, words, spaces, images).
func (s Statistics) Vector() []float32 {
	return []float32{
		float32(s.CharCount),
		float32(s.CharCountNoSpace),
		float32(s.WordCount),
		float32(s.SpaceCount),
		float32(s.ImageCount),
	}
}
