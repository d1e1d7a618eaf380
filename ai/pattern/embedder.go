package pattern

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/poiesic/docflow/ai"
)

// DefaultDimensions matches the default embedding width of the pipeline.
const DefaultDimensions = 384

// HashEmbedder implements ai.Embedder by feature hashing lowercased words
// into a unit-length vector. Equal texts always produce equal vectors.
type HashEmbedder struct {
	dims int
}

var _ ai.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates an embedder producing vectors of width dims.
// Non-positive widths fall back to DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the vector width.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// EmbedText embeds a single text.
func (e *HashEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedTexts embeds texts in order.
func (e *HashEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		idx := int(sum % uint32(e.dims))
		// Signed hashing keeps collisions from always adding up
		if sum&(1<<31) != 0 {
			vec[idx] -= 1.0
		} else {
			vec[idx] += 1.0
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= n
		}
	}
	return vec
}
