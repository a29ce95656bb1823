package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepOnceRemovesOnlyExpired(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	now := time.Now()

	expired := filepath.Join(root, "page_1")
	require.NoError(t, os.MkdirAll(expired, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(expired, "doc.html"), []byte("x"), 0o644))
	twoHoursAgo := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(expired, twoHoursAgo, twoHoursAgo))

	orphan := filepath.Join(root, "orphan.html")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(orphan, twoHoursAgo, twoHoursAgo))

	fresh := filepath.Join(root, "page_2")
	require.NoError(t, os.MkdirAll(fresh, 0o755))
	tenMinutesAgo := now.Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(fresh, tenMinutesAgo, tenMinutesAgo))

	j := NewJanitor(root, time.Minute, time.Hour, stubClock{now: now}, zap.NewNop())
	removed := j.SweepOnce()

	require.Equal(t, 2, removed)
	require.NoDirExists(t, expired)
	require.NoFileExists(t, orphan)
	require.DirExists(t, fresh)
}

func TestScheduleDeletionRemovesPathAfterDelay(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	doomed := filepath.Join(root, "page_3")
	require.NoError(t, os.MkdirAll(doomed, 0o755))

	j := NewJanitor(root, time.Minute, time.Hour, stubClock{now: time.Now()}, zap.NewNop())
	j.ScheduleDeletion(context.Background(), doomed, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, err := os.Stat(doomed)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
	j.Wait()
}

func TestScheduleDeletionAbandonedOnCancel(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	keep := filepath.Join(root, "page_4")
	require.NoError(t, os.MkdirAll(keep, 0o755))

	ctx, cancel := context.WithCancel(context.Background())
	j := NewJanitor(root, time.Minute, time.Hour, stubClock{now: time.Now()}, zap.NewNop())
	j.ScheduleDeletion(ctx, keep, time.Hour)
	cancel()
	j.Wait()

	require.DirExists(t, keep)
}

func TestRunSweepsUntilCanceled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	expired := filepath.Join(root, "page_5")
	require.NoError(t, os.MkdirAll(expired, 0o755))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(expired, old, old))

	ctx, cancel := context.WithCancel(context.Background())
	j := NewJanitor(root, 10*time.Millisecond, time.Hour, stubClock{now: time.Now()}, zap.NewNop())

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(expired)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}
