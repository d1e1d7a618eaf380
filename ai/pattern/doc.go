// Package pattern provides an offline ai.AIProvider.
//
// The EntityExtractor finds entities with regular expressions tuned for
// Spanish and English operational text: honorific-led names, runs of
// capitalized words, organizations introduced by a facility keyword, and
// numeric or spelled-out dates. The Embedder hashes word features into a
// fixed-width vector.
//
// Neither is a substitute for a model server. They exist so the pipeline can
// run end to end without one, for demos, seeding and integration tests.
package pattern
