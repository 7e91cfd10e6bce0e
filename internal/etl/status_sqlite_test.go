package etl

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStatusStore {
	t.Helper()
	store, err := NewSQLiteStatusStore(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStatusStore_GetAbsent(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	doc, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestSQLiteStatusStore_SetGetRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	detail := Detail{TaskID: "t1", RecordsCopied: 12}
	require.NoError(t, store.Set(ctx, "t1", PhaseInProcess, detail))

	doc, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, PhaseInProcess, doc.Status)
	assert.Equal(t, detail, doc.Detail)
}

func TestSQLiteStatusStore_SetOverwrites(t *testing.T) {
	t.Parallel()

	store := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "t1", PhaseInitial, Detail{TaskID: "t1"}))
	require.NoError(t, store.Set(ctx, "t1", PhaseError, Detail{
		TaskID:        "t1",
		RecordsCopied: 3,
		ErrorCode:     500,
		ErrorMessage:  "query window failed",
	}))

	doc, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, PhaseError, doc.Status)
	assert.Equal(t, 3, doc.Detail.RecordsCopied)
	assert.Equal(t, 500, doc.Detail.ErrorCode)
	assert.Equal(t, "query window failed", doc.Detail.ErrorMessage)
}

func TestSQLiteStatusStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "status.db")
	ctx := context.Background()

	store, err := NewSQLiteStatusStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "t1", PhaseFinish, Detail{TaskID: "t1", RecordsCopied: 240}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStatusStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	doc, err := reopened.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, PhaseFinish, doc.Status)
	assert.Equal(t, 240, doc.Detail.RecordsCopied)
}
