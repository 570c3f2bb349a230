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


// Package ai provides the embedding abstraction used across Knowit.
//
// The core domain and the ingestion/retrieval logic depend only on the
// Embedder interface; concrete clients live in sub-packages:
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//     (OpenAI, Ollama, LocalAI, vLLM)
//   - ai/mock: deterministic test double, no network
//
// Public constructors (openai.NewEmbedder) return the INTERFACE type to
// enforce abstraction. The mock constructor returns the CONCRETE type so
// tests can inject behavior and assert call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(
//	    ai.WithHost("https://api.openai.com/v1"),
//	    ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    ai.WithModel("text-embedding-3-small"),
//	)
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := embedder.EmbedTexts(ctx, chunkTexts)
package ai
