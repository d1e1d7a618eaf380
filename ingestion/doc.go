// Package ingestion turns raw documents into stored, embedded chunks.
//
// The Engine type manages the ingestion workflow for documents:
//   - Splitting text into overlapping token windows
//   - Embedding every chunk of a document in one provider call
//   - Storing the document and its chunks atomically
//   - Queueing the document for enrichment
//
// Batches run concurrently on a worker pool whose capacity equals the batch
// size. A failing document never affects the other documents of its batch.
package ingestion
