// Package mock provides a test double implementation of ai.Embedder.
//
// The mock produces deterministic vectors derived from a hash of the input
// text, so tests get stable similarity rankings without any external AI
// service. Custom behavior can be injected through function fields.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	vectors, err := embedder.EmbedTexts(ctx, []string{"test"})
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
