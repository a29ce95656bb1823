package renderer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNilRendererReportsDisabled(t *testing.T) {
	t.Parallel()

	var r *Chromedp
	if _, err := r.Render(context.Background(), "https://example.com"); !errors.Is(err, ErrRendererDisabled) {
		t.Fatalf("expected ErrRendererDisabled, got %v", err)
	}
}

func TestSettleDefault(t *testing.T) {
	t.Parallel()

	r := &Chromedp{}
	if got := r.settle(); got != 2*time.Second {
		t.Fatalf("expected default settle 2s, got %v", got)
	}
	r.cfg.Settle = 250 * time.Millisecond
	if got := r.settle(); got != 250*time.Millisecond {
		t.Fatalf("expected settle override, got %v", got)
	}
}

func TestAcquireSlotHonorsContext(t *testing.T) {
	t.Parallel()

	r := &Chromedp{sem: make(chan struct{}, 1)}
	release, err := r.acquireSlot(context.Background())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.acquireSlot(ctx); err == nil {
		t.Fatal("expected second acquire to fail while slot is held")
	}

	release()
	release2, err := r.acquireSlot(context.Background())
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestWaitDomainBudgetThrottlesPerHost(t *testing.T) {
	t.Parallel()

	r := &Chromedp{cfg: Config{DomainQPS: 20}}
	ctx := context.Background()

	start := time.Now()
	if err := r.waitDomainBudget(ctx, "https://example.com/a"); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	if err := r.waitDomainBudget(ctx, "https://example.com/b"); err != nil {
		t.Fatalf("second wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected second wait to be throttled, elapsed %v", elapsed)
	}

	// A different host holds its own budget.
	start = time.Now()
	if err := r.waitDomainBudget(ctx, "https://other.example.net/a"); err != nil {
		t.Fatalf("other host wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Fatalf("expected fresh host to pass immediately, elapsed %v", elapsed)
	}
}

func TestWaitDomainBudgetDisabled(t *testing.T) {
	t.Parallel()

	r := &Chromedp{}
	if err := r.waitDomainBudget(context.Background(), "://bad"); err != nil {
		t.Fatalf("expected disabled budget to skip parsing, got %v", err)
	}
}

func TestNoopRendererError(t *testing.T) {
	t.Parallel()

	n := NewNoop()
	if _, err := n.Render(context.Background(), "https://example.com"); !errors.Is(err, ErrRendererDisabled) {
		t.Fatalf("expected ErrRendererDisabled, got %v", err)
	}
}
