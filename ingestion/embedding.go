package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/ai"
)

// embeddingStep generates the embeddings of one document's windows.
type embeddingStep struct {
	embedder   ai.Embedder
	dimensions int
	timeout    time.Duration
	logger     *slog.Logger
}

// embed requests every window of a document in a single provider call.
// The result has exactly one vector per window and all vectors have the same
// width, equal to dimensions when dimensions is set.
func (s *embeddingStep) embed(ctx context.Context, windows []Window) ([][]float32, error) {
	texts := make([]string, len(windows))
	for i, w := range windows {
		texts[i] = w.Text
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Debug("generating embeddings for chunks", "chunks", len(texts))
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		s.logger.Error("error generating embeddings", "err", err)
		return nil, err
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, received %d", ErrEmbeddingMismatch, len(texts), len(vectors))
	}

	width := s.dimensions
	if width == 0 && len(vectors) > 0 {
		width = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != width {
			return nil, fmt.Errorf("%w: vector %d has width %d, expected %d", ErrEmbeddingMismatch, i, len(v), width)
		}
	}
	return vectors, nil
}
