package ingestion

import (
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTokens returns n distinct whitespace-separated tokens.
func makeTokens(n int) string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}
	return strings.Join(tokens, " ")
}

func TestNewChunker(t *testing.T) {
	_, err := NewChunker(650, 100, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.size, tt.overlap, nil)
			assert.ErrorIs(t, err, core.ErrInvalidChunking)
		})
	}
}

func TestChunker_Split(t *testing.T) {
	chunker, err := NewChunker(650, 100, nil)
	require.NoError(t, err)

	t.Run("long document", func(t *testing.T) {
		windows := chunker.Split(makeTokens(1400))
		require.Len(t, windows, 3)

		assert.Equal(t, core.Position{Index: 0, Start: 0, End: 650}, windows[0].Position)
		assert.Equal(t, core.Position{Index: 1, Start: 550, End: 1200}, windows[1].Position)
		assert.Equal(t, core.Position{Index: 2, Start: 1100, End: 1400}, windows[2].Position)
		assert.Equal(t, 300, windows[2].TokenCount)
		assert.True(t, strings.HasPrefix(windows[1].Text, "t550 t551"))
		assert.True(t, strings.HasSuffix(windows[2].Text, "t1399"))
	})

	t.Run("adjacent windows share overlap tokens", func(t *testing.T) {
		windows := chunker.Split(makeTokens(2000))
		for i := 1; i < len(windows); i++ {
			prev := strings.Fields(windows[i-1].Text)
			cur := strings.Fields(windows[i].Text)
			assert.Equal(t, prev[len(prev)-100:], cur[:100], "window %d", i)
			assert.Equal(t, windows[i-1].Position.End-100, windows[i].Position.Start)
		}
	})

	t.Run("short document is one window", func(t *testing.T) {
		windows := chunker.Split("Informe  de\tincidente\n  en el puerto")
		require.Len(t, windows, 1)
		assert.Equal(t, "Informe de incidente en el puerto", windows[0].Text)
		assert.Equal(t, 6, windows[0].TokenCount)
	})

	t.Run("exactly size tokens", func(t *testing.T) {
		assert.Len(t, chunker.Split(makeTokens(650)), 1)
		assert.Len(t, chunker.Split(makeTokens(651)), 2)
	})

	t.Run("whitespace only", func(t *testing.T) {
		assert.Empty(t, chunker.Split(" \n\t "))
	})
}

func TestChunker_CustomTokenizer(t *testing.T) {
	commas := TokenizerFunc(func(text string) []string {
		return strings.Split(text, ",")
	})
	chunker, err := NewChunker(2, 1, commas)
	require.NoError(t, err)

	windows := chunker.Split("a,b,c")
	require.Len(t, windows, 2)
	assert.Equal(t, "a b", windows[0].Text)
	assert.Equal(t, "b c", windows[1].Text)
}

func TestExpectedChunks(t *testing.T) {
	tests := []struct {
		n, size, overlap int
		want             int
	}{
		{0, 650, 100, 0},
		{1, 650, 100, 1},
		{650, 650, 100, 1},
		{651, 650, 100, 2},
		{1200, 650, 100, 2},
		{1201, 650, 100, 3},
		{1400, 650, 100, 3},
		{10, 3, 0, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d/%d", tt.n, tt.size, tt.overlap), func(t *testing.T) {
			assert.Equal(t, tt.want, ExpectedChunks(tt.n, tt.size, tt.overlap))

			chunker, err := NewChunker(tt.size, tt.overlap, nil)
			require.NoError(t, err)
			assert.Len(t, chunker.Split(makeTokens(tt.n)), tt.want)
		})
	}
}

func TestReassemble(t *testing.T) {
	chunker, err := NewChunker(650, 100, nil)
	require.NoError(t, err)

	text := makeTokens(1400)
	windows := chunker.Split(text)
	chunks := make([]*core.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = &core.Chunk{Text: w.Text, Position: w.Position, TokenCount: w.TokenCount}
	}

	assert.Equal(t, text, Reassemble(chunks))
	assert.Equal(t, "", Reassemble(nil))
}
