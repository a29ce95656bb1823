// Package worker implements the capture execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// Processor executes one dequeued submission. Implementations own all
// failure handling; the worker only moves work off the queue.
type Processor interface {
	Process(ctx context.Context, sub snapshot.Submission)
}

// Worker consumes queued submissions one at a time.
type Worker struct {
	id        int
	queue     snapshot.Queue
	processor Processor
	logger    *zap.Logger
}

// New constructs a Worker.
func New(id int, queue snapshot.Queue, processor Processor, logger *zap.Logger) *Worker {
	return &Worker{
		id:        id,
		queue:     queue,
		processor: processor,
		logger:    logger.With(zap.Int("worker_id", id)),
	}
}

// Run blocks, consuming submissions until the context finishes or the
// queue closes and drains.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")
	for {
		sub, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, snapshot.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued submission", zap.String("capture_id", sub.CaptureID))
		w.processor.Process(ctx, sub)
	}
}
