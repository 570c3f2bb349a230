// Package providers is the registry of supported embedding and vector-store
// backends.
//
// The registry is the single place that knows which providers exist, which
// environment variables they require, and how to construct a client for
// them. Credential checks are eager: a job validates its providers here
// before any network call, so a missing key surfaces as a named
// configuration problem instead of a mid-batch failure.
package providers

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/poiesic/knowit/ai"
	"github.com/poiesic/knowit/ai/mock"
	"github.com/poiesic/knowit/ai/openai"
	"github.com/poiesic/knowit/core"
)

// Environment variables consulted by the registry.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "KNOWIT_OPENAI_BASE_URL"
	EnvOllamaHost    = "KNOWIT_OLLAMA_HOST"
	EnvPostgresDSN   = "KNOWIT_PG_DSN"
)

// EmbeddingSpec describes one supported embedding provider.
type EmbeddingSpec struct {
	Provider     core.EmbeddingProvider
	RequiredEnv  []string       // Credentials that must be present before any call
	HostEnv      string         // Optional env override for the service URL
	DefaultHost  string         // Used when HostEnv is unset
	DefaultModel string         // Used when the index names no model
	Dimensions   map[string]int // Vector widths of the known models
}

// Dimension returns the vector width for a model, falling back to the
// provider's default model for model names the spec does not know.
func (s EmbeddingSpec) Dimension(model string) int {
	if dim, ok := s.Dimensions[model]; ok {
		return dim
	}
	return s.Dimensions[s.DefaultModel]
}

// StoreSpec describes one supported vector-store provider.
type StoreSpec struct {
	Provider    core.StoreProvider
	RequiredEnv []string
}

// Registry resolves provider names to specs and clients. The environment
// lookup is injectable for tests; production registries read the process
// environment.
type Registry struct {
	lookupEnv func(string) (string, bool)
	embedding map[core.EmbeddingProvider]EmbeddingSpec
	stores    map[core.StoreProvider]StoreSpec
}

// NewRegistry creates a registry backed by the process environment.
func NewRegistry() *Registry {
	return NewRegistryWithEnv(os.LookupEnv)
}

// NewRegistryWithEnv creates a registry with an injected environment
// lookup. Tests use this to supply credentials without touching the
// process environment.
func NewRegistryWithEnv(lookupEnv func(string) (string, bool)) *Registry {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	return &Registry{
		lookupEnv: lookupEnv,
		embedding: map[core.EmbeddingProvider]EmbeddingSpec{
			core.ProviderOpenAI: {
				Provider:     core.ProviderOpenAI,
				RequiredEnv:  []string{EnvOpenAIKey},
				HostEnv:      EnvOpenAIBaseURL,
				DefaultHost:  "https://api.openai.com/v1",
				DefaultModel: "text-embedding-3-small",
				Dimensions: map[string]int{
					"text-embedding-3-small": 1536,
					"text-embedding-3-large": 3072,
					"text-embedding-ada-002": 1536,
				},
			},
			core.ProviderOllama: {
				Provider:     core.ProviderOllama,
				HostEnv:      EnvOllamaHost,
				DefaultHost:  "http://localhost:11434/v1",
				DefaultModel: "nomic-embed-text",
				Dimensions: map[string]int{
					"nomic-embed-text":  768,
					"mxbai-embed-large": 1024,
					"embeddinggemma":    768,
				},
			},
			core.ProviderMock: {
				Provider:     core.ProviderMock,
				DefaultModel: "mock",
				Dimensions: map[string]int{
					"mock": mock.DefaultDimension,
				},
			},
		},
		stores: map[core.StoreProvider]StoreSpec{
			core.StoreBadger: {
				Provider: core.StoreBadger,
			},
			core.StorePgvector: {
				Provider:    core.StorePgvector,
				RequiredEnv: []string{EnvPostgresDSN},
			},
		},
	}
}

// EmbeddingSpec returns the spec for an embedding provider.
func (r *Registry) EmbeddingSpec(provider core.EmbeddingProvider) (EmbeddingSpec, error) {
	spec, ok := r.embedding[provider]
	if !ok {
		return EmbeddingSpec{}, fmt.Errorf("%w: unknown embedding provider %q", core.ErrConfiguration, provider)
	}
	return spec, nil
}

// StoreSpec returns the spec for a vector-store provider.
func (r *Registry) StoreSpec(provider core.StoreProvider) (StoreSpec, error) {
	spec, ok := r.stores[provider]
	if !ok {
		return StoreSpec{}, fmt.Errorf("%w: unknown vector store provider %q", core.ErrConfiguration, provider)
	}
	return spec, nil
}

// EmbeddingProviders lists the supported embedding providers in stable order.
func (r *Registry) EmbeddingProviders() []core.EmbeddingProvider {
	names := make([]core.EmbeddingProvider, 0, len(r.embedding))
	for name := range r.embedding {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// StoreProviders lists the supported vector-store providers in stable order.
func (r *Registry) StoreProviders() []core.StoreProvider {
	names := make([]core.StoreProvider, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateEmbedding checks that the provider exists and every credential it
// requires is present. Missing credentials are reported together, each by
// its environment variable name.
func (r *Registry) ValidateEmbedding(provider core.EmbeddingProvider) error {
	spec, err := r.EmbeddingSpec(provider)
	if err != nil {
		return err
	}
	return r.checkRequired(string(provider), spec.RequiredEnv)
}

// ValidateStore checks that the store provider exists and its credentials
// are present.
func (r *Registry) ValidateStore(provider core.StoreProvider) error {
	spec, err := r.StoreSpec(provider)
	if err != nil {
		return err
	}
	return r.checkRequired(string(provider), spec.RequiredEnv)
}

func (r *Registry) checkRequired(provider string, required []string) error {
	var missing []string
	for _, key := range required {
		if value, ok := r.lookupEnv(key); !ok || value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: provider %s requires %s", core.ErrCredential, provider, strings.Join(missing, ", "))
	}
	return nil
}

// Host resolves the service URL for an embedding provider: the HostEnv
// override when set, the spec default otherwise.
func (r *Registry) Host(provider core.EmbeddingProvider) (string, error) {
	spec, err := r.EmbeddingSpec(provider)
	if err != nil {
		return "", err
	}
	if spec.HostEnv != "" {
		if host, ok := r.lookupEnv(spec.HostEnv); ok && host != "" {
			return host, nil
		}
	}
	return spec.DefaultHost, nil
}

// Dimension returns the vector width produced by a provider/model pair.
// Unknown models fall back to the provider's default model width.
func (r *Registry) Dimension(provider core.EmbeddingProvider, model string) (int, error) {
	spec, err := r.EmbeddingSpec(provider)
	if err != nil {
		return 0, err
	}
	return spec.Dimension(model), nil
}

// PostgresDSN returns the configured Postgres connection string for the
// pgvector store.
func (r *Registry) PostgresDSN() (string, error) {
	if dsn, ok := r.lookupEnv(EnvPostgresDSN); ok && dsn != "" {
		return dsn, nil
	}
	return "", fmt.Errorf("%w: provider %s requires %s", core.ErrCredential, core.StorePgvector, EnvPostgresDSN)
}

// OpenEmbedder validates credentials and constructs an embedding client
// for the provider/model pair. An empty model selects the provider's
// default. Extra options override the derived configuration.
func (r *Registry) OpenEmbedder(provider core.EmbeddingProvider, model string, opts ...ai.ConfigOption) (ai.Embedder, error) {
	spec, err := r.EmbeddingSpec(provider)
	if err != nil {
		return nil, err
	}
	if err := r.checkRequired(string(provider), spec.RequiredEnv); err != nil {
		return nil, err
	}
	if model == "" {
		model = spec.DefaultModel
	}

	if provider == core.ProviderMock {
		return mock.NewMockEmbedderWithDimension(spec.Dimension(model)), nil
	}

	host, err := r.Host(provider)
	if err != nil {
		return nil, err
	}
	var apiKey string
	if len(spec.RequiredEnv) > 0 {
		apiKey, _ = r.lookupEnv(spec.RequiredEnv[0])
	}

	configOpts := append([]ai.ConfigOption{
		ai.WithHost(host),
		ai.WithAPIKey(apiKey),
		ai.WithModel(model),
	}, opts...)
	return openai.NewEmbedder(ai.NewConfig(configOpts...))
}
