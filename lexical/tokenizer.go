package lexical

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into index terms.
type Tokenizer interface {
	Tokenize(text string) []string
}

// SimpleTokenizer lowercases text and splits it on anything that is not a
// letter or a digit.
type SimpleTokenizer struct {
	// MinLength drops shorter tokens. Zero keeps everything.
	MinLength int
}

// Tokenize implements Tokenizer.
func (t SimpleTokenizer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if t.MinLength <= 1 {
		return fields
	}
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= t.MinLength {
			out = append(out, f)
		}
	}
	return out
}

// Tokenize tokenizes text with the default tokenizer.
func Tokenize(text string) []string {
	return SimpleTokenizer{}.Tokenize(text)
}
