package runlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewInMemoryStore(10),
		"sqlite": sqlite,
	}
}

func TestStore_SaveAndList(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Save(ctx, JobRecord{
				SessionID: "sess-1", ConversationID: "thread-1", JobID: "run-1",
				Statuses: []string{"queued", "in_progress", "completed"}, Polls: 2,
				Outcome: "ok", StartedAtMs: 100, FinishedAtMs: 150,
			}))
			require.NoError(t, s.Save(ctx, JobRecord{
				SessionID: "sess-1", ConversationID: "thread-1", JobID: "run-2",
				Statuses: []string{"queued", "failed"}, Polls: 1,
				Outcome: "job_failed", Message: "Run failed", StartedAtMs: 200, FinishedAtMs: 250,
			}))
			require.NoError(t, s.Save(ctx, JobRecord{
				SessionID: "sess-2", ConversationID: "thread-9", Outcome: "submission",
				Message: "create run: connection refused", StartedAtMs: 300, FinishedAtMs: 300,
			}))

			items, err := s.List(ctx, Query{SessionID: "sess-1"})
			require.NoError(t, err)
			require.Len(t, items, 2)
			require.Equal(t, "run-2", items[0].JobID)
			require.Equal(t, "run-1", items[1].JobID)
			require.Equal(t, []string{"queued", "in_progress", "completed"}, items[1].Statuses)
			require.Equal(t, 2, items[1].Polls)
			require.NotEmpty(t, items[1].ID)

			failed, err := s.List(ctx, Query{Outcome: "job_failed"})
			require.NoError(t, err)
			require.Len(t, failed, 1)
			require.Equal(t, "Run failed", failed[0].Message)

			all, err := s.List(ctx, Query{Limit: 2})
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "sess-2", all[0].SessionID)
			require.Empty(t, all[0].Statuses)
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.Error(t, s.Save(ctx, JobRecord{Outcome: "ok"}))
			require.Error(t, s.Save(ctx, JobRecord{SessionID: "sess-1"}))
		})
	}
}

func TestInMemoryStore_Bounded(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx, JobRecord{SessionID: "s", Outcome: "ok", StartedAtMs: int64(i)}))
	}
	items, err := s.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, int64(3), items[0].StartedAtMs)
	require.Equal(t, int64(2), items[1].StartedAtMs)
}

func TestSQLiteStore_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	dsn, err := SQLiteDSNForFile(path)
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), JobRecord{SessionID: "s", Outcome: "ok"}))
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = SQLiteDSNForFile(" ")
	require.Error(t, err)
}
