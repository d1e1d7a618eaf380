// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/docflow/ai"
)

// Provider pairs the chunk embedder with the entity extractor. The two may
// live on different hosts.
type Provider struct {
	embedder  *Embedder
	extractor *EntityExtractor
	logger    *slog.Logger
}

// NewProvider validates config and connects both services.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("openai provider: missing config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, fmt.Errorf("openai provider: embedder: %w", err)
	}
	extractor, err := newEntityExtractor(config)
	if err != nil {
		return nil, fmt.Errorf("openai provider: extractor: %w", err)
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Info("AI services configured",
		"embedding_host", config.EmbeddingHost,
		"embedding_model", config.EmbeddingModel,
		"extractor_host", config.ExtractorHost,
		"extractor_model", config.ExtractorModel)

	return &Provider{embedder: embedder, extractor: extractor, logger: logger}, nil
}

func (p *Provider) Embedder() ai.Embedder { return p.embedder }
func (p *Provider) EntityExtractor() ai.EntityExtractor { return p.extractor }

// Close is a no-op; the HTTP clients hold no resources that need releasing.
func (p *Provider) Close() error {
	p.logger.Debug("provider closed")
	return nil
}
