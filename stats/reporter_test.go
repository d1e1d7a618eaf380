package stats

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter(t *testing.T) {
	r := NewReporter()

	r.RecordIngestion(9, 1, 27, 1000)
	r.RecordIngestion(10, 0, 30, 1000)
	r.RecordEnrichment(4, 1, 12, 3, 2500)

	s := r.Summary()
	assert.Equal(t, 2, s.Ingestion.Runs)
	assert.Equal(t, 20, s.Ingestion.Processed)
	assert.Equal(t, 19, s.Ingestion.Successful)
	assert.Equal(t, 1, s.Ingestion.Failed)
	assert.Equal(t, 57, s.ChunksCreated)
	assert.InDelta(t, 100.0, s.Ingestion.AvgLatencyMs(), 1e-9)
	assert.InDelta(t, 0.95, s.Ingestion.SuccessRate(), 1e-9)

	assert.Equal(t, 5, s.Enrichment.Processed)
	assert.Equal(t, 12, s.EntitiesExtracted)
	assert.Equal(t, 3, s.CrossReferencesCreated)
	assert.InDelta(t, 500.0, s.Enrichment.AvgLatencyMs(), 1e-9)

	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "20 processed, 19 ok, 1 failed, 57 chunks")
	assert.Contains(t, buf.String(), "12 entities, 3 cross-references")

	r.Reset()
	assert.Zero(t, r.Summary().Ingestion.Processed)
}

func TestTotals_Empty(t *testing.T) {
	var totals Totals
	assert.Zero(t, totals.AvgLatencyMs())
	assert.Zero(t, totals.SuccessRate())
}

func TestReporter_Concurrent(t *testing.T) {
	r := NewReporter()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordIngestion(1, 0, 2, 10)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Summary().Ingestion.Successful)
	assert.Equal(t, 100, r.Summary().ChunksCreated)
}
