// Package enrichment extracts named entities from ingested documents and
// links them to records of the reference corpus.
//
// Work arrives through the persisted enrichment queue. ProcessQueue claims
// pending items one at a time, runs Enrich for each and records the outcome
// on the item. A Worker drains the queue on a timer and whenever an
// enrichment.queued message arrives.
//
// Cross-references are scored from the corpus match score and the normalized
// Levenshtein similarity of the two names:
//
//	confidence = round(100 × (0.6 × matchScore + 0.4 × similarity))
//
// and persisted only when the confidence reaches the configured threshold.
package enrichment
