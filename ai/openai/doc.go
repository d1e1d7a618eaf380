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


// Package openai talks to OpenAI-compatible servers (OpenAI, Ollama, vLLM,
// LocalAI) through langchaingo.
//
// Chunks are embedded in requests of at most ai.Config.EmbeddingBatchSize
// texts. Entity extraction asks the chat model for a JSON list of entities,
// repairs the usual formatting slips and retries unparsable answers before
// giving up. Confidences are converted to the 0-100 scale the pipeline uses.
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithExtractorModel("qwen2.5:7b"),
//	))
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	mentions, err := provider.EntityExtractor().ExtractEntities(ctx,
//	    "María López trabaja en el Hospital Central", "es")
package openai
