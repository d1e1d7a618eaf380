package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ID is a unique identifier for stored records.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID in hexadecimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 16)
}

// NewDocumentID generates a document identifier of the form doc_<unixMillis>_<random>.
func NewDocumentID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("doc_%d_%s", now.UnixMilli(), random)
}

// ChunkID returns the identifier of the chunk at index within a document.
func ChunkID(documentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, index)
}

// Document is an ingested unit of text.
type Document struct {
	ID        string
	Title     string
	Text      string
	Metadata  DocumentMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentMetadata describes where a document came from.
// Chunks inherit a copy of it.
type DocumentMetadata struct {
	Source     string
	Type       string
	Created    time.Time
	Language   string
	Author     string
	Extra      map[string]string
	Enrichment *EnrichmentMetadata // Set once the document has been enriched
}

// EnrichmentMetadata records the outcome of the latest enrichment run.
type EnrichmentMetadata struct {
	EntitiesExtracted      int
	CrossReferencesCreated int
	EnrichedAt             time.Time
	Runs                   int // Number of enrichment runs applied to the document
}

// Position locates a chunk inside its document in token offsets.
// Start is inclusive, End is exclusive.
type Position struct {
	Index int
	Start int
	End   int
}

// Chunk is a contiguous token window of a document with its embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Position   Position
	TokenCount int
	Embedding  []float32
	Metadata   DocumentMetadata
	CreatedAt  time.Time
}

// QueueStatus is the lifecycle state of a queued work item.
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// EnrichmentQueueItem is a unit of deferred enrichment work for one document.
type EnrichmentQueueItem struct {
	ID          ID
	DocumentID  string
	ChunkIDs    []string
	Status      QueueStatus
	Priority    int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	Result      *EnrichmentOutcome
}

// EnrichmentOutcome is the summary stored on a completed queue item.
type EnrichmentOutcome struct {
	EntitiesExtracted      int
	CrossReferencesCreated int
	LatencyMs              int64
	Skipped                bool
}

// ReenrichPolicy decides what happens when an already enriched document is enriched again.
type ReenrichPolicy string

const (
	// ReenrichAppend runs enrichment again and appends new entities and
	// cross-references next to the previous ones.
	ReenrichAppend ReenrichPolicy = "append"
	// ReenrichSkip completes the queue item without doing any work.
	ReenrichSkip ReenrichPolicy = "skip"
)

// Valid reports whether p is a known policy.
func (p ReenrichPolicy) Valid() bool {
	return p == ReenrichAppend || p == ReenrichSkip
}

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityPerson EntityType = "PERSON"
	EntityOrg    EntityType = "ORG"
	EntityLoc    EntityType = "LOC"
	EntityDate   EntityType = "DATE"
	EntityCustom EntityType = "CUSTOM"
)

// ExtractedEntity is a named entity found in a document.
type ExtractedEntity struct {
	ID         ID
	DocumentID string
	EntityType EntityType
	Text       string
	Context    string
	Confidence int // 0-100
	Position   Position
	CreatedAt  time.Time
}

// CrossReference links an extracted entity to a reference corpus record.
type CrossReference struct {
	ID               ID
	SourceDocumentID string
	SourceEntity     string
	SourceEntityType EntityType
	TargetCollection string
	TargetID         string
	TargetName       string
	RelationshipType string
	Confidence       int // 0-100
	MatchMethod      string
	Evidence         string
	CreatedAt        time.Time
}

// CorpusRecord is an entry of the reference corpus that entities are matched against.
type CorpusRecord struct {
	ID         string
	Collection string
	Name       string
	Aliases    []string
	Attributes map[string]string
	InsertedAt time.Time
}

// IngestionJob is a document submitted for deferred ingestion.
type IngestionJob struct {
	ID          ID
	Input       DocumentInput
	Status      QueueStatus
	DocumentID  string
	CreatedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// DocumentInput is the caller-supplied form of a document.
type DocumentInput struct {
	ID       string
	Title    string
	Text     string
	Source   string
	Type     string
	Language string
	Metadata map[string]string
}

// CorpusMatch is a corpus record returned by a fuzzy lookup.
// MatchScore is in [0,1].
type CorpusMatch struct {
	Record     *CorpusRecord
	MatchScore float64
}
