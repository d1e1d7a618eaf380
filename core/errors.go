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

import "errors"

// Pipeline failure classes. Concrete errors wrap one of these with %w.
var (
	// ErrIngestionFailure indicates a document could not be ingested.
	ErrIngestionFailure = errors.New("ingestion failure")

	// ErrEnrichmentFailure indicates a document could not be enriched.
	ErrEnrichmentFailure = errors.New("enrichment failure")

	// ErrMonitoringCollection indicates a metrics collection cycle failed.
	ErrMonitoringCollection = errors.New("monitoring collection failure")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a document input failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyText indicates the document text is empty or whitespace.
	ErrEmptyText = errors.New("document text cannot be empty")

	// ErrInvalidCorpusRecord indicates a corpus record failed validation.
	ErrInvalidCorpusRecord = errors.New("invalid corpus record")

	// ErrEmptyName indicates a corpus record has no name.
	ErrEmptyName = errors.New("name cannot be empty")

	// ErrEmptyCollection indicates a corpus record has no collection.
	ErrEmptyCollection = errors.New("collection cannot be empty")

	// ErrInvalidChunking indicates chunk size and overlap are inconsistent.
	ErrInvalidChunking = errors.New("chunk overlap must be non-negative and smaller than chunk size")
)
