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
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// defaultConfidence is used when the model omits a confidence.
	defaultConfidence = 0.8

	contextRadius = 40
	parseAttempts = 3
)

// EntityExtractor implements ai.EntityExtractor using OpenAI-compatible chat APIs.
type EntityExtractor struct {
	client        llms.Model
	minConfidence int
	logger        *slog.Logger
}

// entity is an internal type used for JSON unmarshaling.
// It matches the structure expected by the LLM.
type entity struct {
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Confidence *float64 `json:"confidence"`
	Context    string   `json:"context"`
}

// extraction is the wrapper structure for the LLM's JSON response.
type extraction struct {
	Entities []entity `json:"entities"`
}

// newEntityExtractor is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEntityExtractor(config *ai.Config) (*EntityExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ExtractorHost),
		openai.WithToken(config.APIToken),
		openai.WithModel(config.ExtractorModel),
	)
	if err != nil {
		return nil, err
	}

	return newEntityExtractorWithModel(client, config.MinConfidence), nil
}

func newEntityExtractorWithModel(client llms.Model, minConfidence int) *EntityExtractor {
	return &EntityExtractor{
		client:        client,
		minConfidence: minConfidence,
		logger:        slog.Default().With("component", "openai-extractor"),
	}
}

// NewEntityExtractor creates a new entity extractor using the provided configuration.
//
// Returns ai.EntityExtractor interface to enforce abstraction.
func NewEntityExtractor(config *ai.Config) (ai.EntityExtractor, error) {
	return newEntityExtractor(config)
}

// ExtractEntities extracts named entities from text using an LLM.
// Mentions below the minimum confidence are dropped. Offsets refer to text as given.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildSystemPrompt(language)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(cleanInput(text)),
			},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var result extraction
	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return []ai.EntityMention{}, nil
		}

		responseText := repairJSON(stripCodeFences(response.Choices[0].Content))
		result = extraction{}
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing extractor response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse extractor response after retries", "err", lastErr)
		return nil, lastErr
	}

	mentions := make([]ai.EntityMention, 0, len(result.Entities))
	for _, raw := range result.Entities {
		surface := strings.TrimSpace(raw.Text)
		if surface == "" {
			continue
		}

		score := defaultConfidence
		if raw.Confidence != nil && *raw.Confidence > 0 {
			score = *raw.Confidence
		}
		// Some models answer on a 0-100 scale despite the schema
		if score > 1 {
			score /= 100
		}
		confidence := int(math.Round(min(score, 1) * 100))
		if confidence < e.minConfidence {
			continue
		}

		mention := ai.EntityMention{
			Type:       ai.ParseEntityType(raw.Type),
			Text:       surface,
			Confidence: confidence,
			Start:      -1,
			End:        -1,
			Context:    raw.Context,
		}
		if offset := strings.Index(text, surface); offset >= 0 {
			mention.Start = offset
			mention.End = offset + len(surface)
			if mention.Context == "" {
				mention.Context = ai.ContextWindow(text, mention.Start, mention.End, contextRadius)
			}
		}
		mentions = append(mentions, mention)
	}

	slices.SortStableFunc(mentions, func(a, b ai.EntityMention) int {
		return b.Confidence - a.Confidence
	})

	e.logger.Debug("extracted entities",
		"total", len(result.Entities),
		"filtered", len(mentions))

	return mentions, nil
}
