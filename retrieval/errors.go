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


package retrieval

import "errors"

var (
	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrIndexRepositoryRequired is returned when an index repository is not provided.
	ErrIndexRepositoryRequired = errors.New("index repository required")

	// ErrRegistryRequired is returned when a provider registry is not provided.
	ErrRegistryRequired = errors.New("provider registry required")

	// ErrStoreFactoryRequired is returned when a vector store factory is not provided.
	ErrStoreFactoryRequired = errors.New("vector store factory required")
)
