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


package ai

import (
	"errors"
	"strings"
)

// DefaultBatchSize is the number of texts sent per embedding request when
// the configuration leaves BatchSize zero.
const DefaultBatchSize = 32

// Config holds configuration for an embedding service provider.
type Config struct {
	// Host is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	Host string

	// APIKey authenticates against the service. Leave empty for local
	// services that accept unauthenticated requests.
	APIKey string

	// Model is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	Model string

	// BatchSize caps how many texts one embedding request carries.
	BatchSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithAPIKey sets the API key used to authenticate requests.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithBatchSize sets how many texts one embedding request carries.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible service.
func DefaultConfig() *Config {
	return &Config{
		Host:      "http://localhost:11434/v1",
		Model:     "embeddinggemma",
		BatchSize: DefaultBatchSize,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("https://api.openai.com/v1"),
//	    WithModel("text-embedding-3-small"),
//	    WithAPIKey(key),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to the host if missing, which is
// required by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host = strings.TrimSuffix(c.Host, "/")
		c.Host = c.Host + "/v1"
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.Host == "" {
		return errors.New("ai config: Host is required")
	}
	if c.Model == "" {
		return errors.New("ai config: Model is required")
	}
	if c.BatchSize < 1 {
		return errors.New("ai config: BatchSize must be positive")
	}
	return nil
}
