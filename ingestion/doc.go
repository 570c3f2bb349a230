// Package ingestion provides background orchestration for document processing.
//
// The Coordinator type runs one job per batch of uploaded documents, including:
//   - Extracting plain text through a parse.Parser
//   - Splitting the text into chunks and rendering them through the
//     collection's template
//   - Embedding chunk batches for every vector index of the collection
//   - Upserting the vectors into each index's store
//
// Jobs execute on a worker pool and record progress through a jobs.Tracker
// after every document, so callers can poll while work is in flight. The
// first unrecoverable error (bad configuration, missing credentials, a
// document that loses every embedding batch) fails the job and stops the
// remaining documents. Recoverable failures, such as one bad document in a
// larger batch or a single rejected embedding batch, are logged and skipped.
package ingestion
