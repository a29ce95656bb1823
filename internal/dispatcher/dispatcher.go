// Package dispatcher manages worker fan-out over the capture queue.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
	"github.com/JakeFAU/pagesnap/internal/worker"
)

// Dispatcher fans queued submissions out to a pool of workers.
type Dispatcher struct {
	workers []*worker.Worker
}

// New builds a pool of n workers reading from queue. n is clamped to
// at least one.
func New(n int, queue snapshot.Queue, processor worker.Processor, logger *zap.Logger) *Dispatcher {
	if n < 1 {
		n = 1
	}
	workers := make([]*worker.Worker, n)
	for i := range workers {
		workers[i] = worker.New(i+1, queue, processor, logger)
	}
	return &Dispatcher{workers: workers}
}

// Run starts all workers and blocks until every worker has returned,
// which happens once the context finishes or the queue closes and
// drains.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}
