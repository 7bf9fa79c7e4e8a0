package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Workers is a supervised queue for background pipeline runs. Intake
// schedules submissions with Submit and returns immediately; the queue
// bounds concurrency and reports each completion through OnDone.
type Workers struct {
	processor *Processor
	group     *errgroup.Group
	ctx       context.Context
	slots     chan struct{}

	// OnDone, if set, is invoked after each run with its result. Set
	// before the first Submit.
	OnDone func(Result)
}

// NewWorkers creates a queue running pipelines with at most maxConcurrent
// in flight. The context bounds all scheduled work.
func NewWorkers(ctx context.Context, processor *Processor, maxConcurrent int) *Workers {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	g, gctx := errgroup.WithContext(ctx)

	return &Workers{
		processor: processor,
		group:     g,
		ctx:       gctx,
		slots:     make(chan struct{}, maxConcurrent),
	}
}

// Submit schedules a pipeline run for the submission and returns
// immediately, even when every worker slot is busy. The run waits for a
// slot in the background, so a stalled pipeline delays other runs but
// never the caller.
func (w *Workers) Submit(submissionID string) {
	w.group.Go(func() error {
		select {
		case w.slots <- struct{}{}:
			defer func() { <-w.slots }()
		case <-w.ctx.Done():
			// Shutting down before the run started. The submission
			// stays unprocessed and a later process run picks it up.
			zap.L().Warn("pipeline run abandoned on shutdown",
				zap.String("submission_id", submissionID),
			)
			return nil
		}

		result := w.processor.Process(w.ctx, submissionID)
		if result.Err != nil {
			zap.L().Warn("pipeline run ended with recorded error",
				zap.String("submission_id", result.SubmissionID),
				zap.String("state", string(result.State)),
				zap.Error(result.Err),
			)
		}
		if w.OnDone != nil {
			w.OnDone(result)
		}
		// Errors are recorded in the store; returning one here would
		// cancel sibling runs.
		return nil
	})
}

// Wait blocks until all scheduled runs have finished.
func (w *Workers) Wait() {
	_ = w.group.Wait()
}
