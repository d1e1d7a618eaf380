// Package reembed regenerates the embeddings of stored chunks, typically
// after switching to a different embedding model.
//
// Documents are walked in key order and their chunks are re-embedded in
// batches. Embedding calls are retried with exponential backoff and the
// resulting vectors are normalized to unit length before being written back.
package reembed
