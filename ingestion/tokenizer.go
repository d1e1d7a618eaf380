package ingestion

import "strings"

// Tokenizer splits text into tokens. Chunk windows are measured in tokens.
type Tokenizer interface {
	Tokenize(text string) []string
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(text string) []string

// Tokenize calls f(text).
func (f TokenizerFunc) Tokenize(text string) []string {
	return f(text)
}

// WhitespaceTokenizer splits on runs of Unicode whitespace.
var WhitespaceTokenizer Tokenizer = TokenizerFunc(strings.Fields)
