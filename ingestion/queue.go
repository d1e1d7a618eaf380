package ingestion

import (
	"context"
	"errors"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// QueueResult summarizes one ProcessIngestionQueue run.
type QueueResult struct {
	Claimed    int
	Successful int
	Failed     int
}

// Submit stores inputs as pending ingestion jobs for a later
// ProcessIngestionQueue run.
func (e *Engine) Submit(ctx context.Context, inputs ...core.DocumentInput) ([]*core.IngestionJob, error) {
	if e.jobs == nil {
		return nil, ErrIngestionQueueRequired
	}
	jobs := make([]*core.IngestionJob, len(inputs))
	for i := range inputs {
		if err := core.ValidateDocumentInput(&inputs[i]); err != nil {
			return nil, err
		}
		jobs[i] = &core.IngestionJob{Input: inputs[i]}
	}
	return e.jobs.Submit(ctx, jobs...)
}

// ProcessIngestionQueue claims pending jobs one batch at a time and ingests
// them until the queue is empty or ctx is done. Jobs claimed by another
// worker are skipped.
func (e *Engine) ProcessIngestionQueue(ctx context.Context) (*QueueResult, error) {
	if e.jobs == nil {
		return nil, ErrIngestionQueueRequired
	}

	result := &QueueResult{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pending, err := e.jobs.ListPending(ctx, e.batchSize)
		if err != nil {
			return result, err
		}
		if len(pending) == 0 {
			return result, nil
		}

		claimed := make([]*core.IngestionJob, 0, len(pending))
		for _, job := range pending {
			got, err := e.jobs.Claim(ctx, job.ID)
			if errors.Is(err, storage.ErrAlreadyClaimed) {
				e.logger.Debug("ingestion job already claimed", "job", job.ID)
				continue
			}
			if err != nil {
				return result, err
			}
			claimed = append(claimed, got)
		}
		if len(claimed) == 0 {
			continue
		}
		result.Claimed += len(claimed)

		inputs := make([]core.DocumentInput, len(claimed))
		for i, job := range claimed {
			inputs[i] = job.Input
		}

		batch, batchErr := e.IngestBatch(ctx, inputs)
		for i, job := range claimed {
			r := batch.Results[i]
			finishCtx := context.WithoutCancel(ctx)
			if r.Err != nil {
				result.Failed++
				err = e.jobs.Fail(finishCtx, job.ID, r.Err.Error())
			} else {
				result.Successful++
				err = e.jobs.Complete(finishCtx, job.ID, r.DocumentID)
			}
			if err != nil {
				e.logger.Error("error finishing ingestion job", "job", job.ID, "err", err)
			}
		}
		if batchErr != nil {
			return result, batchErr
		}
	}
}
