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


// Package ai provides abstractions for the AI services used by docflow.
//
// This package defines interfaces for text embeddings, named entity
// extraction and corpus matching. Ingestion and enrichment depend on these
// abstractions rather than on concrete model clients.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - EntityExtractor: Finds PERSON, ORG, LOC, DATE and CUSTOM mentions in text
//   - CorpusMatcher: Approximate lookups against reference collections
//   - AIProvider: Aggregates the embedder and extractor for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, vLLM, LocalAI) via langchaingo
//   - ai/pattern: Offline extractor and hashing embedder with no model server
//   - ai/ratelimit: Token bucket decorators for any Embedder or EntityExtractor
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, pattern.NewProvider) return
// interface types. Mock constructors return concrete types so tests can use
// CallCount, WithXFunc and Reset.
//
//	mockEmbed := mock.NewMockEmbedder()
//	mockEmbed.WithEmbedTextFunc(...)
//	count := mockEmbed.CallCount()
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hola mundo")
//	mentions, err := provider.EntityExtractor().ExtractEntities(ctx, "María López visitó Madrid", "es")
package ai
