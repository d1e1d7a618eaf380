package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/storage"
)

// QueueResult summarizes one ProcessQueue call.
type QueueResult struct {
	Processed              int
	Successful             int
	Failed                 int
	EntitiesExtracted      int
	CrossReferencesCreated int
	LatencyMs              int64
}

// ProcessQueue selects up to the batch size of pending items, highest
// priority first and oldest first within a priority, and enriches them one
// by one.
//
// Each item is claimed before it runs; items another worker claimed in the
// meantime are skipped and not counted. An item whose enrichment fails is
// marked failed with the error message and processing moves on. Failed items
// are not retried. The returned error is reserved for queue access failures
// and cancellation.
func (e *Engine) ProcessQueue(ctx context.Context) (*QueueResult, error) {
	start := time.Now()
	result := &QueueResult{}

	pending, err := e.queue.ListPending(ctx, e.batchSize)
	if err != nil {
		return result, err
	}

	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		claimed, err := e.queue.Claim(ctx, item.ID)
		if errors.Is(err, storage.ErrAlreadyClaimed) {
			e.logger.Debug("queue item already claimed", "item", item.ID)
			continue
		}
		if err != nil {
			return result, err
		}

		result.Processed++
		if e.processItem(ctx, claimed, result) {
			result.Successful++
		} else {
			result.Failed++
		}
	}

	result.LatencyMs = time.Since(start).Milliseconds()
	if result.Processed > 0 {
		e.logger.Info("enrichment queue processed",
			"processed", result.Processed,
			"successful", result.Successful,
			"failed", result.Failed,
			"latencyMs", result.LatencyMs)
	}
	return result, nil
}

// processItem enriches one claimed item and records its terminal state.
func (e *Engine) processItem(ctx context.Context, item *core.EnrichmentQueueItem, total *QueueResult) bool {
	res, enrichErr := e.Enrich(ctx, item.DocumentID)

	finishCtx := context.WithoutCancel(ctx)
	msg := events.Message{
		Topic:      events.TopicEnrichmentCompleted,
		DocumentID: item.DocumentID,
		ItemID:     item.ID,
	}

	if enrichErr != nil {
		if err := e.queue.Fail(finishCtx, item.ID, enrichErr.Error()); err != nil {
			e.logger.Error("error marking queue item failed", "item", item.ID, "err", err)
		}
		msg.Detail = enrichErr.Error()
		e.bus.Publish(finishCtx, msg)
		return false
	}

	outcome := &core.EnrichmentOutcome{
		EntitiesExtracted:      res.EntitiesExtracted,
		CrossReferencesCreated: res.CrossReferencesCreated,
		LatencyMs:              res.LatencyMs,
		Skipped:                res.Skipped,
	}
	if err := e.queue.Complete(finishCtx, item.ID, outcome); err != nil {
		e.logger.Error("error marking queue item completed", "item", item.ID, "err", err)
	}
	total.EntitiesExtracted += res.EntitiesExtracted
	total.CrossReferencesCreated += res.CrossReferencesCreated
	e.bus.Publish(finishCtx, msg)
	return true
}
