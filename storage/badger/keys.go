package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/knowit/core"
)

// Key prefixes for different data types. Record keys are "prefix:id" in
// decimal; composite index keys append BigEndian IDs after the colon so
// lexicographic iteration yields numeric order. Sequence keys carry no
// colon and therefore never collide with a colon-suffixed prefix scan.
const (
	collectionPrefix    = "colrec"
	collectionIDSeq     = "colrecseq"
	documentPrefix      = "docrec"
	documentColPrefix   = "doccol"
	chunkPrefix         = "chkrec"
	chunkDocPrefix      = "chkdoc"
	chunkColPrefix      = "chkcol"
	indexRecordPrefix   = "idxrec"
	indexIDSeq          = "idxrecseq"
	indexColPrefix      = "idxcol"
	jobPrefix           = "jobrec"
	jobIDSeq            = "jobrecseq"
	jobColPrefix        = "jobcol"
	vectorRecordPrefix  = "vecrec"
)

// makeCollectionKey generates a key for a collection by ID.
func makeCollectionKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", collectionPrefix, id))
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeDocumentCollectionKey generates a composite key for the
// collection->document index. Format: prefix:collectionID:documentID.
func makeDocumentCollectionKey(collectionID, documentID core.ID) []byte {
	return makeCompositeKey(documentColPrefix, uint64(collectionID), uint64(documentID))
}

// makePartialDocumentCollectionKey generates the scan prefix for all
// documents of a collection.
func makePartialDocumentCollectionKey(collectionID core.ID) []byte {
	return makePartialCompositeKey(documentColPrefix, uint64(collectionID))
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkPrefix, id))
}

// makeChunkDocumentKey generates a composite key for the
// document->chunk index. Format: prefix:documentID:chunkIndex.
// Iterating the partial key yields chunks in document order.
func makeChunkDocumentKey(documentID core.ID, chunkIndex int) []byte {
	return makeCompositeKey(chunkDocPrefix, uint64(documentID), uint64(chunkIndex))
}

// makePartialChunkDocumentKey generates the scan prefix for all chunks
// of a document.
func makePartialChunkDocumentKey(documentID core.ID) []byte {
	return makePartialCompositeKey(chunkDocPrefix, uint64(documentID))
}

// makeChunkCollectionKey generates a composite key for the
// collection->chunk index. Format: prefix:collectionID:chunkID.
func makeChunkCollectionKey(collectionID, chunkID core.ID) []byte {
	return makeCompositeKey(chunkColPrefix, uint64(collectionID), uint64(chunkID))
}

// makePartialChunkCollectionKey generates the scan prefix for all chunks
// of a collection.
func makePartialChunkCollectionKey(collectionID core.ID) []byte {
	return makePartialCompositeKey(chunkColPrefix, uint64(collectionID))
}

// makeIndexKey generates a key for a vector index by ID.
func makeIndexKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", indexRecordPrefix, id))
}

// makeIndexCollectionKey generates a composite key for the
// collection->index index. Format: prefix:collectionID:indexID.
func makeIndexCollectionKey(collectionID, indexID core.ID) []byte {
	return makeCompositeKey(indexColPrefix, uint64(collectionID), uint64(indexID))
}

// makePartialIndexCollectionKey generates the scan prefix for all vector
// indexes of a collection.
func makePartialIndexCollectionKey(collectionID core.ID) []byte {
	return makePartialCompositeKey(indexColPrefix, uint64(collectionID))
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", jobPrefix, id))
}

// makeJobCollectionKey generates a composite key for the
// collection->job index. Format: prefix:collectionID:jobID.
func makeJobCollectionKey(collectionID, jobID core.ID) []byte {
	return makeCompositeKey(jobColPrefix, uint64(collectionID), uint64(jobID))
}

// makePartialJobCollectionKey generates the scan prefix for all jobs of
// a collection.
func makePartialJobCollectionKey(collectionID core.ID) []byte {
	return makePartialCompositeKey(jobColPrefix, uint64(collectionID))
}

// MakeVectorKey generates a composite key for a stored vector record.
// Format: prefix:indexID:chunkID. Exported for the embedded vector
// store, which shares this backend.
func MakeVectorKey(indexID, chunkID core.ID) []byte {
	return makeCompositeKey(vectorRecordPrefix, uint64(indexID), uint64(chunkID))
}

// MakePartialVectorKey generates the scan prefix for all vectors of an
// index.
func MakePartialVectorKey(indexID core.ID) []byte {
	return makePartialCompositeKey(vectorRecordPrefix, uint64(indexID))
}

// makeCompositeKey builds prefix:a:b with both IDs in BigEndian order so
// lexicographic sort matches numeric sort.
func makeCompositeKey(prefix string, a, b uint64) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+16)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], a)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], b)
	return buf
}

// makePartialCompositeKey builds prefix:a for range scans.
func makePartialCompositeKey(prefix string, a uint64) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], a)
	return buf
}
