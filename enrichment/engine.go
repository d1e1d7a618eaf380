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


package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/storage"
)

const (
	defaultBatchSize           = 100
	defaultConfidenceThreshold = 75
	defaultFuzzyThreshold      = 0.5
	defaultTopK                = 5
	defaultLanguage            = "es"
	defaultCallTimeout         = 30 * time.Second
)

// Engine extracts entities from documents and cross-references them
// against the reference corpus.
type Engine struct {
	documents           storage.DocumentRepository
	queue               storage.EnrichmentQueueRepository
	logs                storage.LogRepository
	writer              storage.EnrichmentWriter
	extractor           ai.EntityExtractor
	matcher             ai.CorpusMatcher
	bus                 events.Bus
	routes              map[core.EntityType]Route
	batchSize           int
	confidenceThreshold int
	fuzzyThreshold      float64
	topK                int
	policy              core.ReenrichPolicy
	defaultLanguage     string
	callTimeout         time.Duration
	logger              *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithBatchSize sets how many pending items one ProcessQueue call selects.
// Default is 100.
func WithBatchSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 {
			size = 1
		}
		e.batchSize = size
		return nil
	}
}

// WithConfidenceThreshold sets the minimum confidence (0-100) of a persisted
// cross-reference. Default is 75.
func WithConfidenceThreshold(threshold int) Option {
	return func(e *Engine) error {
		if threshold < 0 || threshold > 100 {
			return fmt.Errorf("confidence threshold must be between 0 and 100, got %d", threshold)
		}
		e.confidenceThreshold = threshold
		return nil
	}
}

// WithFuzzyThreshold sets the minimum corpus match score (0-1) a candidate
// needs to be scored at all. Default is 0.5.
func WithFuzzyThreshold(threshold float64) Option {
	return func(e *Engine) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("fuzzy threshold must be between 0 and 1, got %g", threshold)
		}
		e.fuzzyThreshold = threshold
		return nil
	}
}

// WithTopK sets how many corpus candidates are requested per mention.
// Default is 5.
func WithTopK(k int) Option {
	return func(e *Engine) error {
		if k < 1 {
			k = 1
		}
		e.topK = k
		return nil
	}
}

// WithReenrichPolicy sets what happens to documents that were enriched before.
// Default is core.ReenrichAppend.
func WithReenrichPolicy(policy core.ReenrichPolicy) Option {
	return func(e *Engine) error {
		if !policy.Valid() {
			return fmt.Errorf("unknown re-enrichment policy %q", policy)
		}
		e.policy = policy
		return nil
	}
}

// WithRoutes replaces the entity type to collection routing table.
func WithRoutes(routes map[core.EntityType]Route) Option {
	return func(e *Engine) error {
		e.routes = routes
		return nil
	}
}

// WithDefaultLanguage sets the language passed to the extractor for
// documents without one. Default is "es".
func WithDefaultLanguage(language string) Option {
	return func(e *Engine) error {
		if language != "" {
			e.defaultLanguage = language
		}
		return nil
	}
}

// WithCallTimeout bounds each extractor and corpus call. Default is 30s.
func WithCallTimeout(timeout time.Duration) Option {
	return func(e *Engine) error {
		e.callTimeout = timeout
		return nil
	}
}

// WithLogRepository records an enrichment log entry for every attempt.
func WithLogRepository(logs storage.LogRepository) Option {
	return func(e *Engine) error {
		e.logs = logs
		return nil
	}
}

// WithEnrichmentWriter stores each run through w, which commits entities,
// cross-references and document metadata atomically. Without it the three
// are written one after another through the repositories.
func WithEnrichmentWriter(w storage.EnrichmentWriter) Option {
	return func(e *Engine) error {
		e.writer = w
		return nil
	}
}

// WithBus publishes an enrichment.completed message for every finished queue item.
func WithBus(bus events.Bus) Option {
	return func(e *Engine) error {
		if bus == nil {
			bus = events.Nop{}
		}
		e.bus = bus
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a new enrichment engine.
func NewEngine(
	documents storage.DocumentRepository,
	queue storage.EnrichmentQueueRepository,
	entities storage.EntityRepository,
	crossRefs storage.CrossReferenceRepository,
	extractor ai.EntityExtractor,
	matcher ai.CorpusMatcher,
	opts ...Option,
) (*Engine, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if queue == nil {
		return nil, ErrQueueRepositoryRequired
	}
	if entities == nil {
		return nil, ErrEntityRepositoryRequired
	}
	if crossRefs == nil {
		return nil, ErrCrossReferenceRepositoryRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if matcher == nil {
		return nil, ErrMatcherRequired
	}

	e := &Engine{
		documents:           documents,
		queue:               queue,
		extractor:           extractor,
		matcher:             matcher,
		bus:                 events.Nop{},
		routes:              DefaultRoutes(),
		batchSize:           defaultBatchSize,
		confidenceThreshold: defaultConfidenceThreshold,
		fuzzyThreshold:      defaultFuzzyThreshold,
		topK:                defaultTopK,
		policy:              core.ReenrichAppend,
		defaultLanguage:     defaultLanguage,
		callTimeout:         defaultCallTimeout,
		logger:              slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.writer == nil {
		e.writer = repositoryWriter{documents: documents, entities: entities, crossRefs: crossRefs}
	}
	e.logger = e.logger.With("component", "enrichment")

	return e, nil
}

// Result describes one enrichment run.
type Result struct {
	DocumentID             string
	EntitiesExtracted      int
	CrossReferencesCreated int
	LatencyMs              int64
	Skipped                bool // Document was already enriched and the policy is skip
}

// Enrich extracts the entities of one document, cross-references them
// against the corpus and stores both.
//
// Failures wrap core.ErrEnrichmentFailure. An enrichment log entry is
// written either way.
func (e *Engine) Enrich(ctx context.Context, documentID string) (*Result, error) {
	start := time.Now()

	result, avgEntity, avgRef, err := e.enrich(ctx, documentID)

	latency := time.Since(start).Milliseconds()
	if err != nil {
		e.logger.Warn("document enrichment failed", "document", documentID, "err", err)
		e.recordLog(ctx, &core.EnrichmentLog{
			DocumentID: documentID,
			Status:     core.LogStatusFailed,
			LatencyMs:  latency,
			Detail:     err.Error(),
		})
		return nil, fmt.Errorf("%w: document %s: %w", core.ErrEnrichmentFailure, documentID, err)
	}

	result.LatencyMs = latency
	status := core.LogStatusSuccess
	if result.Skipped {
		status = core.LogStatusSkipped
	}
	e.recordLog(ctx, &core.EnrichmentLog{
		DocumentID:             documentID,
		Status:                 status,
		EntitiesExtracted:      result.EntitiesExtracted,
		CrossReferencesCreated: result.CrossReferencesCreated,
		AvgEntityConfidence:    avgEntity,
		AvgCrossRefConfidence:  avgRef,
		LatencyMs:              latency,
	})
	e.logger.Debug("document enriched",
		"document", documentID,
		"entities", result.EntitiesExtracted,
		"crossReferences", result.CrossReferencesCreated,
		"skipped", result.Skipped,
		"latencyMs", latency)

	return result, nil
}

func (e *Engine) enrich(ctx context.Context, documentID string) (*Result, float64, float64, error) {
	doc, err := e.documents.GetDocument(ctx, documentID)
	if err != nil {
		return nil, 0, 0, err
	}

	previous := doc.Metadata.Enrichment
	if previous != nil && e.policy == core.ReenrichSkip {
		return &Result{DocumentID: documentID, Skipped: true}, 0, 0, nil
	}

	chunks, err := e.documents.GetChunks(ctx, documentID)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(chunks) == 0 {
		return nil, 0, 0, ErrNoChunks
	}
	text := ingestion.Reassemble(chunks)

	language := doc.Metadata.Language
	if language == "" {
		language = e.defaultLanguage
	}

	mentions, err := e.extract(ctx, text, language)
	if err != nil {
		return nil, 0, 0, err
	}
	for i := range mentions {
		mentions[i].Confidence = min(max(mentions[i].Confidence, 0), 100)
	}
	mentions = Dedupe(mentions)

	now := time.Now().UTC()
	entities := make([]*core.ExtractedEntity, len(mentions))
	var refs []*core.CrossReference
	for i, m := range mentions {
		entities[i] = &core.ExtractedEntity{
			DocumentID: documentID,
			EntityType: m.Type,
			Text:       m.Text,
			Context:    m.Context,
			Confidence: m.Confidence,
			Position:   core.Position{Index: i, Start: m.Start, End: m.End},
			CreatedAt:  now,
		}

		matched, err := e.crossReference(ctx, documentID, m, now)
		if err != nil {
			return nil, 0, 0, err
		}
		refs = append(refs, matched...)
	}

	meta := &core.EnrichmentMetadata{
		EntitiesExtracted:      len(entities),
		CrossReferencesCreated: len(refs),
		EnrichedAt:             now,
		Runs:                   1,
	}
	if previous != nil {
		meta.Runs = previous.Runs + 1
	}
	if err := e.writer.SaveEnrichment(ctx, documentID, entities, refs, meta); err != nil {
		return nil, 0, 0, err
	}

	result := &Result{
		DocumentID:             documentID,
		EntitiesExtracted:      len(entities),
		CrossReferencesCreated: len(refs),
	}
	return result, averageEntityConfidence(entities), averageCrossRefConfidence(refs), nil
}

func (e *Engine) extract(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.extractor.ExtractEntities(callCtx, text, language)
}

// crossReference scores the corpus candidates of one mention and returns
// the cross-references that reach the confidence threshold.
func (e *Engine) crossReference(ctx context.Context, documentID string, m ai.EntityMention, now time.Time) ([]*core.CrossReference, error) {
	route, ok := e.routes[m.Type]
	if !ok {
		return nil, nil
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	candidates, err := e.matcher.FuzzyFind(callCtx, m.Text, route.Collection, e.topK)
	if err != nil {
		return nil, fmt.Errorf("corpus lookup for %q in %s: %w", m.Text, route.Collection, err)
	}

	var refs []*core.CrossReference
	for _, c := range candidates {
		if c.Record == nil || c.MatchScore < e.fuzzyThreshold {
			continue
		}
		similarity := Similarity(m.Text, c.Record.Name)
		confidence := Confidence(c.MatchScore, similarity)
		if confidence < e.confidenceThreshold {
			continue
		}
		refs = append(refs, &core.CrossReference{
			SourceDocumentID: documentID,
			SourceEntity:     m.Text,
			SourceEntityType: m.Type,
			TargetCollection: route.Collection,
			TargetID:         c.Record.ID,
			TargetName:       c.Record.Name,
			RelationshipType: route.Relationship,
			Confidence:       confidence,
			MatchMethod:      MatchMethodFuzzy,
			Evidence:         evidence(m, c.MatchScore, similarity),
			CreatedAt:        now,
		})
	}
	return refs, nil
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout > 0 {
		return context.WithTimeout(ctx, e.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) recordLog(ctx context.Context, entry *core.EnrichmentLog) {
	if e.logs == nil {
		return
	}
	if err := e.logs.AddEnrichmentLog(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("error writing enrichment log", "document", entry.DocumentID, "err", err)
	}
}

// Dedupe keeps the first mention of every (type, lowercased text) pair.
func Dedupe(mentions []ai.EntityMention) []ai.EntityMention {
	seen := make(map[string]bool, len(mentions))
	out := make([]ai.EntityMention, 0, len(mentions))
	for _, m := range mentions {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		key := string(m.Type) + "\x00" + strings.ToLower(text)
		if seen[key] {
			continue
		}
		seen[key] = true
		m.Text = text
		out = append(out, m)
	}
	return out
}

func evidence(m ai.EntityMention, matchScore, similarity float64) string {
	if m.Context != "" {
		return fmt.Sprintf("match=%.2f similarity=%.2f context=%q", matchScore, similarity, m.Context)
	}
	return fmt.Sprintf("match=%.2f similarity=%.2f", matchScore, similarity)
}

func averageEntityConfidence(entities []*core.ExtractedEntity) float64 {
	if len(entities) == 0 {
		return 0
	}
	total := 0
	for _, e := range entities {
		total += e.Confidence
	}
	return float64(total) / float64(len(entities))
}

func averageCrossRefConfidence(refs []*core.CrossReference) float64 {
	if len(refs) == 0 {
		return 0
	}
	total := 0
	for _, r := range refs {
		total += r.Confidence
	}
	return float64(total) / float64(len(refs))
}

// repositoryWriter stores a run through the individual repositories. A
// failure part way leaves the earlier writes in place.
type repositoryWriter struct {
	documents storage.DocumentRepository
	entities  storage.EntityRepository
	crossRefs storage.CrossReferenceRepository
}

func (w repositoryWriter) SaveEnrichment(ctx context.Context, documentID string, entities []*core.ExtractedEntity, refs []*core.CrossReference, meta *core.EnrichmentMetadata) error {
	if len(entities) > 0 {
		if _, err := w.entities.AddEntities(ctx, entities...); err != nil {
			return err
		}
	}
	if len(refs) > 0 {
		if _, err := w.crossRefs.AddCrossReferences(ctx, refs...); err != nil {
			return err
		}
	}
	return w.documents.UpdateEnrichment(ctx, documentID, meta)
}
