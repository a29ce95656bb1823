package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

const (
	defaultSweepInterval = 30 * time.Minute
	defaultMaxAge        = time.Hour
)

// Janitor expires page directories two ways: one-shot deletions
// scheduled after a capture has been delivered, and a periodic sweep
// that removes anything older than the retention age. It only ever
// deletes by path, so it needs no coordination with writers beyond
// filesystem atomicity.
type Janitor struct {
	root     string
	interval time.Duration
	maxAge   time.Duration
	clock    snapshot.Clock
	logger   *zap.Logger

	wg sync.WaitGroup
}

// NewJanitor returns a janitor over root. interval is how often the
// sweep runs, maxAge how old a child must be before it is removed.
func NewJanitor(root string, interval, maxAge time.Duration, clock snapshot.Clock, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Janitor{
		root:     root,
		interval: interval,
		maxAge:   maxAge,
		clock:    clock,
		logger:   logger,
	}
}

// Run sweeps on the configured interval until ctx is canceled. The
// first sweep happens one interval after start.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.SweepOnce()
		}
	}
}

// SweepOnce removes every immediate child of the root whose modified
// time is older than the retention age and reports how many were
// removed. A fault on one child never stops the rest.
func (j *Janitor) SweepOnce() int {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		j.logger.Warn("retention sweep list failed", zap.String("root", j.root), zap.Error(err))
		return 0
	}
	removed := 0
	cutoff := j.clock.Now().Add(-j.maxAge)
	for _, entry := range entries {
		path := filepath.Join(j.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			j.logger.Warn("retention sweep stat failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := j.remove(path); err != nil {
			j.logger.Warn("retention sweep delete failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
		snapshot.TotalSweptDirs.Inc()
		j.logger.Info("expired artifact removed",
			zap.String("path", path), zap.Time("modified", info.ModTime()))
	}
	return removed
}

// ScheduleDeletion removes path after delay. A cancellation of ctx
// before the delay elapses abandons the deletion; the next retention
// sweep picks the path up once it ages out.
func (j *Janitor) ScheduleDeletion(ctx context.Context, path string, delay time.Duration) {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := j.remove(path); err != nil {
			j.logger.Warn("scheduled deletion failed", zap.String("path", path), zap.Error(err))
			return
		}
		j.logger.Debug("scheduled deletion done", zap.String("path", path))
	}()
}

// Wait blocks until every pending scheduled deletion has finished or
// been abandoned.
func (j *Janitor) Wait() {
	j.wg.Wait()
}

// remove deletes a file or directory tree. Missing paths are a no-op.
func (j *Janitor) remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove artifact %s: %w", path, err)
	}
	return nil
}
