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


// Package retrieval executes queries against vector indexes.
//
// The Planner type implements the three retrieval strategies an index can
// be configured with:
//   - Vector search using embedding similarity
//   - Fulltext search using keyword frequency with stop-word filtering
//   - Hybrid search fusing both branches under configured weights
//
// Hybrid branches run in parallel. Each branch's scores are min-max
// normalized to [0,1] before the weighted blend, and the score threshold
// and result count apply to the blended score. A branch whose weight is
// zero is skipped entirely, so a fulltext query never touches an embedding
// provider.
package retrieval
