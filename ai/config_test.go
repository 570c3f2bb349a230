package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	assert.Equal(t, "embeddinggemma", cfg.Model)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Empty(t, cfg.APIKey)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
		assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.Host)
	})

	t.Run("with api key and model", func(t *testing.T) {
		cfg := NewConfig(
			WithAPIKey("sk-test"),
			WithModel("text-embedding-3-small"),
		)

		assert.Equal(t, "sk-test", cfg.APIKey)
		assert.Equal(t, "text-embedding-3-small", cfg.Model)
	})

	t.Run("with batch size", func(t *testing.T) {
		cfg := NewConfig(WithBatchSize(8))

		assert.Equal(t, 8, cfg.BatchSize)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{
			name:     "already has /v1",
			host:     "http://localhost:11434/v1",
			expected: "http://localhost:11434/v1",
		},
		{
			name:     "missing /v1",
			host:     "http://localhost:11434",
			expected: "http://localhost:11434/v1",
		},
		{
			name:     "has trailing slash",
			host:     "http://localhost:11434/",
			expected: "http://localhost:11434/v1",
		},
		{
			name:     "empty host",
			host:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Host: tt.host}

			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.Host)
		})
	}

	t.Run("zero batch size gets default", func(t *testing.T) {
		cfg := &Config{Host: "http://localhost:11434/v1"}
		cfg.Normalize()

		assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{
			Host:      "http://localhost:11434",
			Model:     "embeddinggemma",
			BatchSize: 16,
		}

		err := cfg.Validate()
		assert.NoError(t, err)

		// Should also normalize
		assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
	})

	t.Run("missing host", func(t *testing.T) {
		cfg := &Config{Model: "embeddinggemma"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Host")
	})

	t.Run("missing model", func(t *testing.T) {
		cfg := &Config{Host: "http://localhost:11434/v1"}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Model")
	})

	t.Run("negative batch size", func(t *testing.T) {
		cfg := &Config{
			Host:      "http://localhost:11434/v1",
			Model:     "embeddinggemma",
			BatchSize: -1,
		}

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "BatchSize")
	})
}

func TestConfigValidate_Integration(t *testing.T) {
	// NewConfig and DefaultConfig both produce valid configurations.
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
}
