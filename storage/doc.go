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


// Package storage provides the storage abstraction layer for docflow.
//
// This package defines repository interfaces that decouple storage implementation
// from pipeline logic. Each persisted collection of the pipeline has its own
// repository:
//
//   - DocumentRepository: documents and their chunks
//   - IngestionQueueRepository: documents submitted for deferred ingestion
//   - EnrichmentQueueRepository: pending enrichment work with atomic claims
//   - EntityRepository: extracted entities (append-only)
//   - CrossReferenceRepository: entity to corpus links (append-only)
//   - LogRepository: ingestion, enrichment and query logs
//   - MetricsRepository: metric snapshots, alerts and health checks
//   - CorpusRepository: the reference corpus and its fuzzy lookup
//
// The badger subpackage implements all of them on a single BadgerDB instance.
// Values are encoded with msgpack via Marshal and Unmarshal.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	docs, err := badger.NewDocumentRepository(backend)
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
