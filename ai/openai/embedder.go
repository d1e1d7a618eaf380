package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/docflow/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder on top of an OpenAI-compatible
// embeddings endpoint. Large calls are split into requests of at most
// batchSize texts.
type Embedder struct {
	client    embeddings.Embedder
	batchSize int
	logger    *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIToken),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	// Chunk text keeps its line structure in storage; the model does not need it.
	client, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return newEmbedderWithClient(client, config.EmbeddingBatchSize), nil
}

func newEmbedderWithClient(client embeddings.Embedder, batchSize int) *Embedder {
	return &Embedder{
		client:    client,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "openai-embedder"),
	}
}

// NewEmbedder creates an embedder from config.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText embeds a single chunk or query.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Error("embedding request failed", "length", len(text), "err", err)
		return nil, err
	}
	return vector, nil
}

// EmbedTexts embeds texts in order. The result has exactly one vector per
// text or an error.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	size := e.batchSize
	if size <= 0 {
		size = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batch, err := e.client.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			e.logger.Error("embedding request failed", "offset", start, "count", end-start, "err", err)
			return nil, err
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(batch), end-start)
		}
		vectors = append(vectors, batch...)
	}

	e.logger.Debug("embedded texts", "count", len(texts), "requests", (len(texts)+size-1)/size)
	return vectors, nil
}
