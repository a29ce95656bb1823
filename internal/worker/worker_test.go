package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

type fakeQueue struct {
	mu     sync.Mutex
	items  []snapshot.Submission
	closed bool
}

func (q *fakeQueue) Enqueue(_ context.Context, sub snapshot.Submission) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, sub)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (snapshot.Submission, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			sub := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return sub, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return snapshot.Submission{}, snapshot.ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return snapshot.Submission{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (q *fakeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

type recordingProcessor struct {
	mu   sync.Mutex
	subs []snapshot.Submission
}

func (p *recordingProcessor) Process(_ context.Context, sub snapshot.Submission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, sub)
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func TestWorkerProcessesQueuedSubmissions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueue{items: []snapshot.Submission{
		{CaptureID: "cap-1", URL: "https://example.com/a"},
		{CaptureID: "cap-2", URL: "https://example.com/b"},
	}}
	proc := &recordingProcessor{}
	w := New(1, queue, proc, zap.NewNop())

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return proc.count() == 2
	}, time.Second, 10*time.Millisecond)

	proc.mu.Lock()
	require.Equal(t, "cap-1", proc.subs[0].CaptureID)
	require.Equal(t, "cap-2", proc.subs[1].CaptureID)
	proc.mu.Unlock()
	cancel()
}

func TestWorkerStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{items: []snapshot.Submission{{CaptureID: "cap-1"}}}
	proc := &recordingProcessor{}
	w := New(1, queue, proc, zap.NewNop())

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return proc.count() == 1
	}, time.Second, 10*time.Millisecond)

	queue.close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after queue close")
	}
}

type erroringQueue struct {
	mu    sync.Mutex
	calls int
	sub   snapshot.Submission
}

func (q *erroringQueue) Enqueue(context.Context, snapshot.Submission) error { return nil }

func (q *erroringQueue) Dequeue(ctx context.Context) (snapshot.Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.calls == 1 {
		return snapshot.Submission{}, errors.New("transient dequeue fault")
	}
	if q.calls == 2 {
		return q.sub, nil
	}
	<-ctx.Done()
	return snapshot.Submission{}, ctx.Err()
}

func TestWorkerContinuesAfterDequeueError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &erroringQueue{sub: snapshot.Submission{CaptureID: "cap-after-fault"}}
	proc := &recordingProcessor{}
	w := New(2, queue, proc, zap.NewNop())

	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return proc.count() == 1
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "cap-after-fault", proc.subs[0].CaptureID)
	cancel()
}
