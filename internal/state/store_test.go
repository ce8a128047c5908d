package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/retailsql/internal/testutil"
	"github.com/leapstack-labs/retailsql/pkg/core"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(filepath.Join(t.TempDir(), "audit", "audit.db")))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_OpenMigrates(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Reopening an existing database is a no-op migration.
	again := NewStore(nil)
	require.NoError(t, again.Open(store.Path()))
	require.NoError(t, again.Close())
}

func TestStore_InMemory(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.Open(":memory:"))
	defer store.Close()

	_, err := store.Insert(context.Background(), core.ExecutionRecord{Fingerprint: "f", Source: "query", StartedAt: time.Now(), Success: true})
	require.NoError(t, err)

	got, err := store.ListRecords(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_RecordAndList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []core.ExecutionRecord{
		{Fingerprint: "aaaa", Source: "query", StartedAt: base, Duration: 15 * time.Millisecond, RowCount: 3, Success: true},
		{Fingerprint: "bbbb", Source: "template:top_contributors", StartedAt: base.Add(time.Minute), Duration: time.Second, Success: false, Error: "statement timed out"},
		{Fingerprint: "aaaa", Source: "query", StartedAt: base.Add(2 * time.Minute), Duration: 7 * time.Millisecond, RowCount: 1, Success: true},
	}
	for _, rec := range records {
		store.Record(ctx, rec)
	}

	tests := []struct {
		name   string
		filter ListFilter
		fps    []string // newest first
	}{
		{
			name:   "all newest first",
			filter: ListFilter{},
			fps:    []string{"aaaa", "bbbb", "aaaa"},
		},
		{
			name:   "limit",
			filter: ListFilter{Limit: 1},
			fps:    []string{"aaaa"},
		},
		{
			name:   "by fingerprint",
			filter: ListFilter{Fingerprint: "aaaa"},
			fps:    []string{"aaaa", "aaaa"},
		},
		{
			name:   "failed only",
			filter: ListFilter{FailedOnly: true},
			fps:    []string{"bbbb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListRecords(ctx, tt.filter)
			require.NoError(t, err)
			fps := make([]string, len(got))
			for i, e := range got {
				fps[i] = e.Fingerprint
				assert.NotEmpty(t, e.ID)
			}
			assert.Equal(t, tt.fps, fps)
		})
	}

	got, err := store.ListRecords(ctx, ListFilter{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	failed := got[0]
	assert.Equal(t, "template:top_contributors", failed.Source)
	assert.Equal(t, time.Second, failed.Duration)
	assert.Equal(t, "statement timed out", failed.Error)
	assert.False(t, failed.Success)
	assert.True(t, base.Add(time.Minute).Equal(failed.StartedAt))
}

func TestStore_Prune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := range 4 {
		_, err := store.Insert(ctx, core.ExecutionRecord{Fingerprint: "f", Source: "query", StartedAt: base.AddDate(0, 0, i), Success: true})
		require.NoError(t, err)
	}

	n, err := store.Prune(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := store.ListRecords(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestStore_NotOpened(t *testing.T) {
	store := NewStore(nil)

	_, err := store.Insert(context.Background(), core.ExecutionRecord{})
	assert.ErrorContains(t, err, "database not opened")

	_, err = store.ListRecords(context.Background(), ListFilter{})
	assert.ErrorContains(t, err, "database not opened")

	// Record swallows the error.
	store.Record(context.Background(), core.ExecutionRecord{Fingerprint: "f"})
	assert.NoError(t, store.Close())
}
