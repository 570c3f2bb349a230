package retrieval

import (
	"iter"

	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/vectorstore"
)

// Monitor provides hooks to observe query execution.
// Implement this interface to track intermediate stages during retrieval.
// Callbacks for branches a strategy does not run are never invoked.
type Monitor interface {
	Start(query string)
	AfterQueryEmbedding(vector []float32)
	AfterVectorSearch(matches []vectorstore.Match)
	AfterKeywordSearch(scores iter.Seq2[core.ID, float64])
	Finish(results []Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                 {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)                {}
func (n *noopMonitor) AfterVectorSearch(_ []vectorstore.Match)        {}
func (n *noopMonitor) AfterKeywordSearch(_ iter.Seq2[core.ID, float64]) {}
func (n *noopMonitor) Finish(_ []Result)                              {}
