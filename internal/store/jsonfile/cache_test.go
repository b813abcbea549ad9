package jsonfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/gltodo/internal/core/todo"
)

var t0 = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func pendingItem(id string, updated time.Time) todo.Item {
	return todo.Item{
		ID:        id,
		Project:   "group/project",
		Author:    "alice",
		Action:    todo.ActionAssigned,
		State:     todo.StatePending,
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
	}
}

func seed(t *testing.T, s *CacheStore, items ...todo.Item) {
	t.Helper()
	require.NoError(t, s.Commit(context.Background(), Commit{
		Items:  items,
		Cursor: todo.Cursor{LastSyncedAt: t0},
	}))
}

func TestCacheStore_LoadMissing(t *testing.T) {
	s := NewCacheStore(t.TempDir())

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, snap.SchemaVersion)
	assert.Empty(t, snap.Items)
	assert.True(t, snap.Cursor.Terminal())
}

func TestCacheStore_CommitAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(filepath.Join(t.TempDir(), "accounts", "default"))

	cursor := todo.Cursor{NextPage: "3", LastSyncedAt: t0}
	require.NoError(t, s.Commit(ctx, Commit{
		Items:  []todo.Item{pendingItem("1", t0), pendingItem("2", t0)},
		Cursor: cursor,
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, "3", snap.Cursor.NextPage)
	assert.True(t, snap.Cursor.LastSyncedAt.Equal(t0))

	item, ok := snap.Item("2")
	require.True(t, ok)
	assert.Equal(t, "alice", item.Author)
}

func TestCacheStore_CrashBeforeRenameKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewCacheStore(dir)
	seed(t, s, pendingItem("1", t0))

	s.rename = func(string, string) error { return errors.New("simulated crash") }

	err := s.Commit(ctx, Commit{Items: []todo.Item{pendingItem("1", t0), pendingItem("2", t0)}})
	require.Error(t, err)

	s.rename = os.Rename
	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "1", snap.Items[0].ID)

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp file should be cleaned up")
}

func TestCacheStore_LeftoverTempFileIsIgnored(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewCacheStore(dir)
	seed(t, s, pendingItem("1", t0))

	// A crash after writing the temp file but before the rename.
	require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFileName+".123.tmp"), []byte(`{"schema_ver`), 0o600))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
}

func TestCacheStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "truncated json", content: `{"schema_version":1,"items":[`},
		{name: "unknown schema", content: `{"schema_version":99,"items":[]}`},
		{name: "item without id", content: `{"schema_version":1,"items":[{"state":"pending"}]}`},
		{name: "invalid state", content: `{"schema_version":1,"items":[{"id":"1","state":"reopened"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFileName), []byte(tt.content), 0o600))

			_, err := NewCacheStore(dir).Load(context.Background())
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestCacheStore_Quarantine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CacheFileName), []byte("garbage"), 0o600))

	s := NewCacheStore(dir)
	s.now = func() time.Time { return t0 }

	backup, err := s.Quarantine(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cache.json.corrupt.20260401-100000"), backup)
	assert.FileExists(t, backup)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)

	// nothing to quarantine
	backup, err = s.Quarantine(ctx)
	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestCacheStore_QuarantineLeavesHealthySnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(t.TempDir())
	seed(t, s, pendingItem("1", t0))

	backup, err := s.Quarantine(ctx)
	require.NoError(t, err)
	assert.Empty(t, backup)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Items, 1)
}

func TestCacheStore_ApplyMutation(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(t.TempDir())
	seed(t, s, pendingItem("42", t0), pendingItem("7", t0))

	done := todo.Mutation{ID: "m1", ItemID: "42", Kind: todo.MutationDone, IssuedAt: t0.Add(time.Minute)}
	applied, err := s.ApplyMutation(ctx, done)
	require.NoError(t, err)
	assert.True(t, applied)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.PendingMutations, 1)
	item, _ := snap.Item("42")
	assert.Equal(t, todo.StateDoneUnconfirmed, item.State)
	assert.True(t, item.CompletedAt.Equal(done.IssuedAt))

	t.Run("duplicate done is a no-op", func(t *testing.T) {
		applied, err := s.ApplyMutation(ctx, todo.Mutation{ID: "m2", ItemID: "42", Kind: todo.MutationDone, IssuedAt: t0})
		require.NoError(t, err)
		assert.False(t, applied)

		snap, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, snap.PendingMutations, 1)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := s.ApplyMutation(ctx, todo.Mutation{ID: "m3", ItemID: "nope", Kind: todo.MutationDone})
		require.ErrorIs(t, err, todo.ErrNotFound)
	})

	t.Run("snooze replaces previous snooze", func(t *testing.T) {
		for i, until := range []time.Time{t0.Add(time.Hour), t0.Add(2 * time.Hour)} {
			_, err := s.ApplyMutation(ctx, todo.Mutation{
				ID: "s" + string(rune('a'+i)), ItemID: "7", Kind: todo.MutationSnooze,
				SnoozeUntil: until, IssuedAt: t0,
			})
			require.NoError(t, err)
		}

		snap, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, snap.PendingMutations, 2)
		item, _ := snap.Item("7")
		assert.True(t, item.SnoozedUntil.Equal(t0.Add(2*time.Hour)))
	})
}

func TestCacheStore_CommitPreservesMutationsQueuedDuringPass(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(t.TempDir())
	seed(t, s, pendingItem("1", t0), pendingItem("2", t0))

	// Queued before the pass started; the pass resolves it.
	_, err := s.ApplyMutation(ctx, todo.Mutation{ID: "old", ItemID: "1", Kind: todo.MutationDone, IssuedAt: t0})
	require.NoError(t, err)

	// Queued while the pass was running.
	_, err = s.ApplyMutation(ctx, todo.Mutation{ID: "new", ItemID: "2", Kind: todo.MutationDone, IssuedAt: t0})
	require.NoError(t, err)

	// The pass computed its items before "new" existed.
	first := pendingItem("1", t0)
	first.State = todo.StateDone
	require.NoError(t, s.Commit(ctx, Commit{
		Items:    []todo.Item{first, pendingItem("2", t0), pendingItem("3", t0)},
		Resolved: []string{"old"},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.PendingMutations, 1)
	assert.Equal(t, "new", snap.PendingMutations[0].ID)

	item, _ := snap.Item("2")
	assert.Equal(t, todo.StateDoneUnconfirmed, item.State, "optimistic state is re-applied")
	item, _ = snap.Item("1")
	assert.Equal(t, todo.StateDone, item.State)
	assert.Len(t, snap.Items, 3)
}

func TestCacheStore_CommitRecordsAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(t.TempDir())
	seed(t, s, pendingItem("1", t0))

	m := todo.Mutation{ID: "m", ItemID: "1", Kind: todo.MutationDone, IssuedAt: t0}
	_, err := s.ApplyMutation(ctx, m)
	require.NoError(t, err)

	m.Attempts = 3
	m.LastError = "gitlab unavailable"
	require.NoError(t, s.Commit(ctx, Commit{
		Items:     []todo.Item{pendingItem("1", t0)},
		Attempted: map[string]todo.Mutation{"m": m},
	}))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.PendingMutations, 1)
	assert.Equal(t, 3, snap.PendingMutations[0].Attempts)
	assert.Equal(t, "gitlab unavailable", snap.PendingMutations[0].LastError)
}

func TestCacheStore_ResolveAndDrop(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(t.TempDir())
	seed(t, s, pendingItem("1", t0), pendingItem("2", t0))

	_, err := s.ApplyMutation(ctx, todo.Mutation{ID: "a", ItemID: "1", Kind: todo.MutationDone, IssuedAt: t0})
	require.NoError(t, err)
	_, err = s.ApplyMutation(ctx, todo.Mutation{ID: "b", ItemID: "2", Kind: todo.MutationDone, IssuedAt: t0})
	require.NoError(t, err)

	require.NoError(t, s.ResolveMutation(ctx, "1"))

	dropped, err := s.DropMutation(ctx, "b")
	require.NoError(t, err)
	assert.True(t, dropped)

	dropped, err = s.DropMutation(ctx, "b")
	require.NoError(t, err)
	assert.False(t, dropped)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.PendingMutations)

	item, _ := snap.Item("2")
	assert.Equal(t, todo.StatePending, item.State, "dropping reverts the optimistic done")
	assert.True(t, item.CompletedAt.IsZero())
}

func TestCacheStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := NewCacheStore(t.TempDir())
	seed(t, s, pendingItem("1", t0))

	require.NoError(t, s.Reset(ctx))
	require.NoError(t, s.Reset(ctx))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Items)
}
