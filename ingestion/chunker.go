package ingestion

import (
	"strings"

	"github.com/poiesic/docflow/core"
)

// Window is one chunk produced by a Chunker, before embedding.
type Window struct {
	Text       string
	Position   core.Position
	TokenCount int
}

// Chunker slides a fixed token window over text.
type Chunker struct {
	size      int
	overlap   int
	tokenizer Tokenizer
}

// NewChunker creates a chunker. A nil tokenizer uses WhitespaceTokenizer.
func NewChunker(size, overlap int, tokenizer Tokenizer) (*Chunker, error) {
	if err := core.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}
	if tokenizer == nil {
		tokenizer = WhitespaceTokenizer
	}
	return &Chunker{
		size:      size,
		overlap:   overlap,
		tokenizer: tokenizer,
	}, nil
}

// Split tokenizes text and returns its windows in order.
//
// Windows hold at most size tokens and start every size-overlap tokens, so
// adjacent windows share exactly overlap tokens. The final window ends at
// the last token and may be shorter. Text without tokens yields no windows.
func (c *Chunker) Split(text string) []Window {
	tokens := c.tokenizer.Tokenize(text)
	n := len(tokens)
	if n == 0 {
		return nil
	}

	step := c.size - c.overlap
	windows := make([]Window, 0, ExpectedChunks(n, c.size, c.overlap))
	for start := 0; ; start += step {
		end := min(start+c.size, n)
		windows = append(windows, Window{
			Text: strings.Join(tokens[start:end], " "),
			Position: core.Position{
				Index: len(windows),
				Start: start,
				End:   end,
			},
			TokenCount: end - start,
		})
		if end == n {
			break
		}
	}
	return windows
}

// ExpectedChunks returns the number of windows Split produces for n tokens:
// 1 if n <= size, else ceil((n-overlap)/(size-overlap)).
func ExpectedChunks(n, size, overlap int) int {
	if n == 0 {
		return 0
	}
	if n <= size {
		return 1
	}
	step := size - overlap
	return (n - overlap + step - 1) / step
}

// Reassemble rebuilds the token stream of a document from its chunks by
// dropping each chunk's overlap with the previous one. Chunks must be in
// index order. A chunk whose text does not split back into TokenCount
// tokens is appended whole.
func Reassemble(chunks []*core.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for i, chunk := range chunks {
		text := chunk.Text
		if skip := prevEnd - chunk.Position.Start; i > 0 && skip > 0 {
			tokens := strings.Split(chunk.Text, " ")
			if len(tokens) == chunk.TokenCount {
				text = strings.Join(tokens[min(skip, len(tokens)):], " ")
			}
		}
		if text != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
		prevEnd = chunk.Position.End
	}
	return b.String()
}
