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


package core

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the domain records. Field order is the wire format;
// changing it breaks every existing database. Timestamps travel as Unix
// microseconds, maps are written with sorted keys so identical values
// produce identical bytes.

var errNegativeLength = errors.New("negative length prefix")

// IDMUS serializes ID values.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

// timeMUS serializes time.Time as Unix microseconds.
type timeMUS struct{}

func (timeMUS) Size(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

var timeSer = timeMUS{}

// vectorMUS serializes []float32 with a varint length prefix.
type vectorMUS struct{}

func (vectorMUS) Size(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	size += len(v) * raw.Float32.Size(0)
	return
}

func (vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return
}

func (vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
	}
	return
}

var vectorSer = vectorMUS{}

// metadataMUS serializes map[string]string with sorted keys.
// A nil and an empty map share the same encoding and decode as nil.
type metadataMUS struct{}

func (metadataMUS) Size(m map[string]string) (size int) {
	size = varint.Int.Size(len(m))
	for k, v := range m {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	return
}

func (metadataMUS) Marshal(m map[string]string, bs []byte) (n int) {
	n = varint.Int.Marshal(len(m), bs)
	for _, k := range slices.Sorted(maps.Keys(m)) {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(m[k], bs[n:])
	}
	return
}

func (metadataMUS) Unmarshal(bs []byte) (m map[string]string, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	m = make(map[string]string, length)
	var (
		n1   int
		k, v string
	)
	for i := 0; i < length; i++ {
		k, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		v, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return nil, n, err
		}
		m[k] = v
	}
	return
}

var metadataSer = metadataMUS{}

// ProcessingConfigMUS serializes ProcessingConfig values.
var ProcessingConfigMUS = processingConfigMUS{}

type processingConfigMUS struct{}

func (processingConfigMUS) Size(v ProcessingConfig) (size int) {
	size = varint.Int.Size(v.ChunkTokenSize)
	size += varint.Int.Size(v.MinChunkSizeChars)
	size += varint.Int.Size(v.ChunkOverlap)
	size += varint.Int.Size(v.MinChunkLengthToEmbed)
	size += varint.Int.Size(v.EmbeddingBatchSize)
	size += varint.Int.Size(v.MaxChunkCount)
	size += ord.Bool.Size(v.VisionEnabled)
	size += ord.String.Size(v.VisionProvider)
	size += ord.String.Size(v.VisionModel)
	size += ord.String.Size(v.ChunkTemplate)
	size += metadataSer.Size(v.MetadataTemplate)
	return
}

func (processingConfigMUS) Marshal(v ProcessingConfig, bs []byte) (n int) {
	n = varint.Int.Marshal(v.ChunkTokenSize, bs)
	n += varint.Int.Marshal(v.MinChunkSizeChars, bs[n:])
	n += varint.Int.Marshal(v.ChunkOverlap, bs[n:])
	n += varint.Int.Marshal(v.MinChunkLengthToEmbed, bs[n:])
	n += varint.Int.Marshal(v.EmbeddingBatchSize, bs[n:])
	n += varint.Int.Marshal(v.MaxChunkCount, bs[n:])
	n += ord.Bool.Marshal(v.VisionEnabled, bs[n:])
	n += ord.String.Marshal(v.VisionProvider, bs[n:])
	n += ord.String.Marshal(v.VisionModel, bs[n:])
	n += ord.String.Marshal(v.ChunkTemplate, bs[n:])
	n += metadataSer.Marshal(v.MetadataTemplate, bs[n:])
	return
}

func (processingConfigMUS) Unmarshal(bs []byte) (v ProcessingConfig, n int, err error) {
	var n1 int
	v.ChunkTokenSize, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	v.MinChunkSizeChars, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkOverlap, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MinChunkLengthToEmbed, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.EmbeddingBatchSize, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MaxChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.VisionEnabled, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.VisionProvider, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.VisionModel, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkTemplate, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.MetadataTemplate, n1, err = metadataSer.Unmarshal(bs[n:])
	n += n1
	return
}

// CollectionMUS serializes Collection values.
var CollectionMUS = collectionMUS{}

type collectionMUS struct{}

func (collectionMUS) Size(v Collection) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Name)
	size += ord.String.Size(v.Description)
	size += ProcessingConfigMUS.Size(v.Config)
	size += varint.Int.Size(v.DocumentCount)
	size += varint.Int.Size(v.ChunkCount)
	size += varint.Int.Size(int(v.Status))
	size += ord.String.Size(v.ErrorMessage)
	size += timeSer.Size(v.InsertedAt)
	size += timeSer.Size(v.UpdatedAt)
	return
}

func (collectionMUS) Marshal(v Collection, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(v.Description, bs[n:])
	n += ProcessingConfigMUS.Marshal(v.Config, bs[n:])
	n += varint.Int.Marshal(v.DocumentCount, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += timeSer.Marshal(v.InsertedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (collectionMUS) Unmarshal(bs []byte) (v Collection, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Description, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Config, n1, err = ProcessingConfigMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.DocumentCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var status int
	status, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = LifecycleStatus(status)
	v.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

// DocumentMUS serializes Document values.
var DocumentMUS = documentMUS{}

type documentMUS struct{}

func (documentMUS) Size(v Document) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.CollectionId)
	size += ord.String.Size(v.Filename)
	size += ord.String.Size(v.SourceId)
	size += ord.String.Size(v.Contents)
	size += timeSer.Size(v.InsertedAt)
	return
}

func (documentMUS) Marshal(v Document, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.CollectionId, bs[n:])
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += ord.String.Marshal(v.SourceId, bs[n:])
	n += ord.String.Marshal(v.Contents, bs[n:])
	n += timeSer.Marshal(v.InsertedAt, bs[n:])
	return
}

func (documentMUS) Unmarshal(bs []byte) (v Document, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.CollectionId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.SourceId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Contents, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

// ChunkMUS serializes Chunk values.
var ChunkMUS = chunkMUS{}

type chunkMUS struct{}

func (chunkMUS) Size(v Chunk) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.DocumentId)
	size += IDMUS.Size(v.CollectionId)
	size += varint.Int.Size(v.Index)
	size += ord.String.Size(v.Text)
	size += ord.String.Size(v.RenderedText)
	size += metadataSer.Size(v.Metadata)
	size += vectorSer.Size(v.Vector)
	size += ord.Bool.Size(v.IsEnd)
	size += timeSer.Size(v.InsertedAt)
	size += timeSer.Size(v.UpdatedAt)
	return
}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += IDMUS.Marshal(v.CollectionId, bs[n:])
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(v.RenderedText, bs[n:])
	n += metadataSer.Marshal(v.Metadata, bs[n:])
	n += vectorSer.Marshal(v.Vector, bs[n:])
	n += ord.Bool.Marshal(v.IsEnd, bs[n:])
	n += timeSer.Marshal(v.InsertedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CollectionId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Index, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.RenderedText, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = metadataSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = vectorSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.IsEnd, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

// VectorIndexMUS serializes VectorIndex values.
var VectorIndexMUS = vectorIndexMUS{}

type vectorIndexMUS struct{}

func (vectorIndexMUS) Size(v VectorIndex) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Name)
	size += ord.String.Size(v.Description)
	size += IDMUS.Size(v.CollectionId)
	size += ord.String.Size(string(v.EmbeddingProvider))
	size += ord.String.Size(v.EmbeddingModel)
	size += ord.String.Size(string(v.Store))
	size += varint.Int.Size(int(v.Strategy))
	size += raw.Float64.Size(v.SemanticWeight)
	size += raw.Float64.Size(v.KeywordWeight)
	size += varint.Int.Size(v.TopK)
	size += raw.Float64.Size(v.ScoreThreshold)
	size += varint.Int.Size(v.DocumentCount)
	size += varint.Int.Size(v.ChunkCount)
	size += varint.Int.Size(int(v.Status))
	size += ord.String.Size(v.ErrorMessage)
	size += timeSer.Size(v.InsertedAt)
	size += timeSer.Size(v.UpdatedAt)
	return
}

func (vectorIndexMUS) Marshal(v VectorIndex, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += ord.String.Marshal(v.Description, bs[n:])
	n += IDMUS.Marshal(v.CollectionId, bs[n:])
	n += ord.String.Marshal(string(v.EmbeddingProvider), bs[n:])
	n += ord.String.Marshal(v.EmbeddingModel, bs[n:])
	n += ord.String.Marshal(string(v.Store), bs[n:])
	n += varint.Int.Marshal(int(v.Strategy), bs[n:])
	n += raw.Float64.Marshal(v.SemanticWeight, bs[n:])
	n += raw.Float64.Marshal(v.KeywordWeight, bs[n:])
	n += varint.Int.Marshal(v.TopK, bs[n:])
	n += raw.Float64.Marshal(v.ScoreThreshold, bs[n:])
	n += varint.Int.Marshal(v.DocumentCount, bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += timeSer.Marshal(v.InsertedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (vectorIndexMUS) Unmarshal(bs []byte) (v VectorIndex, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Description, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CollectionId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var provider string
	provider, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.EmbeddingProvider = EmbeddingProvider(provider)
	v.EmbeddingModel, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var store string
	store, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Store = StoreProvider(store)
	var strategy int
	strategy, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Strategy = SearchStrategy(strategy)
	v.SemanticWeight, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.KeywordWeight, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.TopK, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ScoreThreshold, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.DocumentCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var status int
	status, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = LifecycleStatus(status)
	v.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

// JobMUS serializes Job values.
var JobMUS = jobMUS{}

type jobMUS struct{}

func (jobMUS) Size(v Job) (size int) {
	size = IDMUS.Size(v.Id)
	size += IDMUS.Size(v.CollectionId)
	size += IDMUS.Size(v.IndexId)
	size += varint.Int.Size(int(v.Status))
	size += raw.Float64.Size(v.Progress)
	size += ord.String.Size(v.CurrentStep)
	size += varint.Int.Size(v.TotalFiles)
	size += varint.Int.Size(v.ProcessedFiles)
	size += varint.Int.Size(v.FailedFiles)
	size += varint.Int.Size(v.TotalChunks)
	size += varint.Int.Size(v.ProcessedChunks)
	size += ord.String.Size(v.ErrorMessage)
	size += timeSer.Size(v.InsertedAt)
	size += timeSer.Size(v.UpdatedAt)
	return
}

func (jobMUS) Marshal(v Job, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.CollectionId, bs[n:])
	n += IDMUS.Marshal(v.IndexId, bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += raw.Float64.Marshal(v.Progress, bs[n:])
	n += ord.String.Marshal(v.CurrentStep, bs[n:])
	n += varint.Int.Marshal(v.TotalFiles, bs[n:])
	n += varint.Int.Marshal(v.ProcessedFiles, bs[n:])
	n += varint.Int.Marshal(v.FailedFiles, bs[n:])
	n += varint.Int.Marshal(v.TotalChunks, bs[n:])
	n += varint.Int.Marshal(v.ProcessedChunks, bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += timeSer.Marshal(v.InsertedAt, bs[n:])
	n += timeSer.Marshal(v.UpdatedAt, bs[n:])
	return
}

func (jobMUS) Unmarshal(bs []byte) (v Job, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.CollectionId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.IndexId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var status int
	status, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status = JobStatus(status)
	v.Progress, n1, err = raw.Float64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.CurrentStep, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.TotalFiles, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ProcessedFiles, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FailedFiles, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.TotalChunks, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ProcessedChunks, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.InsertedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

// VectorRecordMUS serializes VectorRecord values.
var VectorRecordMUS = vectorRecordMUS{}

type vectorRecordMUS struct{}

func (vectorRecordMUS) Size(v VectorRecord) (size int) {
	size = IDMUS.Size(v.ChunkId)
	size += IDMUS.Size(v.DocumentId)
	size += varint.Int.Size(v.ChunkIndex)
	size += ord.String.Size(v.Text)
	size += metadataSer.Size(v.Metadata)
	size += vectorSer.Size(v.Vector)
	return
}

func (vectorRecordMUS) Marshal(v VectorRecord, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ChunkId, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += varint.Int.Marshal(v.ChunkIndex, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += metadataSer.Marshal(v.Metadata, bs[n:])
	n += vectorSer.Marshal(v.Vector, bs[n:])
	return
}

func (vectorRecordMUS) Unmarshal(bs []byte) (v VectorRecord, n int, err error) {
	var n1 int
	v.ChunkId, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.DocumentId, n1, err = IDMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.ChunkIndex, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Metadata, n1, err = metadataSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Vector, n1, err = vectorSer.Unmarshal(bs[n:])
	n += n1
	return
}
