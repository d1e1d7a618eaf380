package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/docflow/core"
)

// Key prefixes for different data types
const (
	documentPrefix      = "doc:"
	chunkPrefix         = "chk:"
	enrichQueuePrefix   = "enq:"
	enrichPendingPrefix = "enqp:"
	ingestQueuePrefix   = "inq:"
	ingestPendingPrefix = "inqp:"
	entityPrefix        = "ent:"
	crossRefPrefix      = "xrf:"
	ingestionLogPrefix  = "ilog:"
	enrichmentLogPrefix = "elog:"
	queryLogPrefix      = "qlog:"
	snapshotPrefix      = "pmet:"
	alertPrefix         = "palr:"
	alertIDPrefix       = "palri:"
	healthPrefix        = "shlt:"
	corpusPrefix        = "corp:"
	enrichQueueIDSeq    = "seq:enq"
	ingestQueueIDSeq    = "seq:inq"
	entityIDSeq         = "seq:ent"
	crossRefIDSeq       = "seq:xrf"
	logIDSeq            = "seq:log"
	metricIDSeq         = "seq:met"
)

// keySeparator terminates variable-length key components.
const keySeparator byte = 0

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeChunkPrefix generates the prefix shared by all chunks of a document.
// Format: prefix documentID 0x00
func makeChunkPrefix(documentID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+len(documentID)+1)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, documentID...)
	return append(buf, keySeparator)
}

// makeChunkKey generates a key for a chunk, ordered by position index.
// Format: prefix documentID 0x00 index
func makeChunkKey(documentID string, index int) []byte {
	// Write in BigEndian order so lexicographic sort works correctly
	return binary.BigEndian.AppendUint32(makeChunkPrefix(documentID), uint32(index))
}

// makeIDKey generates a key for a sequence-numbered record.
// Format: prefix id
func makeIDKey(prefix string, id core.ID) []byte {
	return binary.BigEndian.AppendUint64([]byte(prefix), uint64(id))
}

// makeDocScopedKey generates a key for a record that belongs to a document.
// Format: prefix documentID 0x00 id
func makeDocScopedKey(prefix, documentID string, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeDocScopedPrefix(prefix, documentID), uint64(id))
}

// makeDocScopedPrefix generates the prefix shared by a document's records.
func makeDocScopedPrefix(prefix, documentID string) []byte {
	buf := make([]byte, 0, len(prefix)+len(documentID)+9)
	buf = append(buf, prefix...)
	buf = append(buf, documentID...)
	return append(buf, keySeparator)
}

// makeTimeKey generates a composite key for time-ordered records.
// Format: prefix timestamp id
func makeTimeKey(prefix string, timestamp time.Time, id core.ID) []byte {
	buf := makePartialTimeKey(prefix, timestamp)
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makePartialTimeKey generates a partial key for time range queries.
// Format: prefix timestamp
func makePartialTimeKey(prefix string, timestamp time.Time) []byte {
	buf := make([]byte, 0, len(prefix)+16)
	buf = append(buf, prefix...)
	micros := timestamp.UnixMicro()
	if micros < 0 {
		micros = 0
	}
	// Write in BigEndian order so lexicographic sort works correctly
	return binary.BigEndian.AppendUint64(buf, uint64(micros))
}

// makeEnrichPendingKey generates the pending-index key of an enrichment item.
// Higher priorities sort first, then older items.
// Format: prefix ^priority createdAt id
func makeEnrichPendingKey(priority int, createdAt time.Time, id core.ID) []byte {
	buf := make([]byte, 0, len(enrichPendingPrefix)+24)
	buf = append(buf, enrichPendingPrefix...)
	// Flip the sign bit for order-preserving unsigned encoding, then invert for descending order
	ordered := uint64(int64(priority)) ^ (1 << 63)
	buf = binary.BigEndian.AppendUint64(buf, ^ordered)
	buf = binary.BigEndian.AppendUint64(buf, uint64(createdAt.UnixMicro()))
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeIngestPendingKey generates the pending-index key of an ingestion job.
// Format: prefix createdAt id
func makeIngestPendingKey(createdAt time.Time, id core.ID) []byte {
	return makeTimeKey(ingestPendingPrefix, createdAt, id)
}

// makeCorpusPrefix generates the prefix shared by a corpus collection.
// Format: prefix collection 0x00
func makeCorpusPrefix(collection string) []byte {
	return makeDocScopedPrefix(corpusPrefix, collection)
}

// makeCorpusKey generates a key for a corpus record.
// Format: prefix collection 0x00 id
func makeCorpusKey(collection, id string) []byte {
	return append(makeCorpusPrefix(collection), id...)
}
