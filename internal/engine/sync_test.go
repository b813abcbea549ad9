package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/gitlab"
	"github.com/hay-kot/gltodo/internal/store/envtoken"
)

// gitlabEngine wires the engine to a real client talking to srv.
func gitlabEngine(t *testing.T, srv *httptest.Server, creds credential.Store) *Engine {
	t.Helper()

	e := New(Options{
		DataDir:     t.TempDir(),
		Credentials: creds,
		NewClient: func(_ credential.Account, token string) (Remote, error) {
			return gitlab.New(gitlab.Options{BaseURL: srv.URL, Token: token, HTTPClient: srv.Client()})
		},
		PageBudget: 10,
		PerPage:    20,
		Logger:     zerolog.Nop(),
	})
	e.now = func() time.Time { return t0 }
	return e
}

func apiTodo(id int) map[string]any {
	return map[string]any{
		"id":          id,
		"project":     map[string]any{"path_with_namespace": "group/project"},
		"author":      map[string]any{"username": "bob"},
		"action_name": "assigned",
		"target_type": "Issue",
		"target":      map[string]any{"title": fmt.Sprintf("issue %d", id)},
		"target_url":  fmt.Sprintf("https://gitlab.example.com/group/project/-/issues/%d", id),
		"body":        "please look",
		"state":       "pending",
		"created_at":  t0.Add(-time.Hour).Format(time.RFC3339),
		"updated_at":  t0.Add(-time.Duration(id) * time.Minute).Format(time.RFC3339),
	}
}

func TestSync_TwoPagesOfTwenty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/todos", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		body := make([]map[string]any, 0, 20)
		for i := 1; i <= 20; i++ {
			body = append(body, apiTodo((page-1)*20+i))
		}
		if page == 1 {
			w.Header().Set("X-Next-Page", "2")
		} else {
			// the feed shifted while paging: item 20 shows up on both pages
			body[0] = apiTodo(20)
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	e := gitlabEngine(t, srv, newFakeCreds("tok"))

	report, err := e.Sync(context.Background(), testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.True(t, report.Complete)
	assert.Equal(t, 39, report.Added)

	snap, err := e.Cache(testAccount).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 39)
	assert.True(t, snap.Cursor.Terminal())
	assert.True(t, snap.Cursor.LastSyncedAt.Equal(t0))

	seen := map[string]bool{}
	for _, it := range snap.Items {
		assert.False(t, seen[it.ID], "duplicate id %s", it.ID)
		seen[it.ID] = true
	}
}

func TestSync_FortyDistinctItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		body := make([]map[string]any, 0, 20)
		for i := 1; i <= 20; i++ {
			body = append(body, apiTodo((page-1)*20+i))
		}
		if page == 1 {
			w.Header().Set("X-Next-Page", "2")
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	e := gitlabEngine(t, srv, newFakeCreds("tok"))

	_, err := e.Sync(context.Background(), testAccount, SyncOptions{})
	require.NoError(t, err)

	snap, err := e.Cache(testAccount).Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Items, 40)
	assert.Equal(t, "", snap.Cursor.NextPage)
}

func TestSync_UnauthorizedFetchClearsOnce(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"401 Unauthorized"}`))
	}))
	defer srv.Close()

	creds := newFakeCreds("expired")
	e := gitlabEngine(t, srv, creds)

	_, err := e.Sync(context.Background(), testAccount, SyncOptions{})
	require.ErrorIs(t, err, credential.ErrRejected)
	assert.Equal(t, 1, creds.clears)
	assert.Equal(t, int32(1), requests.Load())

	// the cleared credential is never retried
	_, err = e.Sync(context.Background(), testAccount, SyncOptions{})
	require.ErrorIs(t, err, credential.ErrUnavailable)
	assert.Equal(t, 1, creds.clears)
	assert.Equal(t, int32(1), requests.Load())
}

func TestSync_OfflineMarkDoneResolvesWhenOnline(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []todo.Item{item("42", todo.StatePending, t0), item("7", todo.StatePending, t0)}}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	// offline: the next pass cannot reach GitLab
	remote.fetchErr = fmt.Errorf("dial: %w", gitlab.ErrUnavailable)

	queued, err := e.MarkDone(ctx, testAccount, "42")
	require.NoError(t, err)
	require.True(t, queued)

	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.ErrorIs(t, err, gitlab.ErrUnavailable)

	pending, err := e.Pending(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "42", pending[0].ItemID)
	assert.Equal(t, todo.MutationDone, pending[0].Kind)

	// back online
	remote.fetchErr = nil

	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, []string{"42"}, remote.marked)

	snap, err := e.Cache(testAccount).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.PendingMutations)
	it, ok := snap.Item("42")
	require.True(t, ok)
	assert.Equal(t, todo.StateDone, it.State)
}

func TestSync_LocalIntentSurvivesFailedMarkDone(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []todo.Item{item("1", todo.StatePending, t0)}}
	e := newTestEngine(t, remote, newFakeCreds("tok"))
	e.opts.MaxMutationAttempts = 2

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	_, err = e.MarkDone(ctx, testAccount, "1")
	require.NoError(t, err)

	remote.markDoneFn = func(context.Context, string) error {
		return fmt.Errorf("post: %w", gitlab.ErrUnavailable)
	}

	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Exhausted)

	items, err := e.List(ctx, testAccount, todo.Filter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, todo.StateDoneUnconfirmed, items[0].State, "remote pending must not revert local done")

	report, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	require.Len(t, report.Exhausted, 1)
	assert.True(t, errors.Is(report.Exhausted[0], ErrMutationExhausted))
	assert.Equal(t, 2, report.Exhausted[0].Attempts)

	pending, err := e.Pending(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, pending, 1, "exhausted mutations stay queued")
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "gitlab unavailable")
}

func TestSync_UnauthorizedMarkDoneDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: []todo.Item{item("1", todo.StatePending, t0)}}
	creds := newFakeCreds("tok")
	e := newTestEngine(t, remote, creds)

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	_, err = e.MarkDone(ctx, testAccount, "1")
	require.NoError(t, err)

	before, err := os.ReadFile(e.Cache(testAccount).Path())
	require.NoError(t, err)

	remote.items = append(remote.items, item("2", todo.StatePending, t0.Add(time.Minute)))
	remote.markDoneFn = func(context.Context, string) error { return gitlab.ErrUnauthorized }

	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.ErrorIs(t, err, credential.ErrRejected)
	assert.Equal(t, 1, creds.clears)

	after, err := os.ReadFile(e.Cache(testAccount).Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSync_CancelledPassDoesNotCommit(t *testing.T) {
	remote := &fakeRemote{items: []todo.Item{item("1", todo.StatePending, t0)}}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(context.Background(), testAccount, SyncOptions{})
	require.NoError(t, err)
	_, err = e.MarkDone(context.Background(), testAccount, "1")
	require.NoError(t, err)

	before, err := os.ReadFile(e.Cache(testAccount).Path())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	remote.items = append(remote.items, item("2", todo.StatePending, t0.Add(time.Minute)))
	remote.markDoneFn = func(ctx context.Context, _ string) error {
		cancel()
		return ctx.Err()
	}

	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.ErrorIs(t, err, context.Canceled)

	after, err := os.ReadFile(e.Cache(testAccount).Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	// Whether or not the cancelled call landed, the next pass re-checks
	// the feed first. Here it did land, so no second call is made.
	remote.markDoneFn = nil
	remote.items = remote.items[1:]

	report, err := e.Sync(context.Background(), testAccount, SyncOptions{Full: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Empty(t, remote.marked)
}

func TestSync_MutationsQueuedDuringPassWait(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(2)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	remote.fetchHook = func(ctx context.Context) {
		_, err := e.MarkDone(ctx, testAccount, "2")
		require.NoError(t, err)
	}

	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Empty(t, remote.marked, "queued mid-pass, applied next pass")

	snap, err := e.Cache(testAccount).Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.PendingMutations, 1)
	it, _ := snap.Item("2")
	assert.Equal(t, todo.StateDoneUnconfirmed, it.State)

	remote.fetchHook = nil
	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, remote.marked)
}

func TestSync_CorruptCacheSelfHeals(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(3)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	path := e.Cache(testAccount).Path()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":1,"items":[{`), 0o600))

	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, report.Full)
	assert.NotEmpty(t, report.Recovered)
	assert.FileExists(t, report.Recovered)
	assert.Equal(t, 3, report.Added)

	items, err := e.List(ctx, testAccount, todo.Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestSync_RemovedRemotelyBecomesDone(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(3)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	remote.items = remote.items[:2]

	report, err := e.Sync(ctx, testAccount, SyncOptions{Full: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)

	items, err := e.List(ctx, testAccount, todo.Filter{States: []todo.State{todo.StatePending}})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestSync_IncrementalResumesFromCursor(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(50), perPage: 10}
	e := newTestEngine(t, remote, newFakeCreds("tok"))
	e.opts.PageBudget = 2

	// first pass is full, bounded by the larger full budget
	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Pages)
	assert.Equal(t, 100, remote.fetches[0].PageBudget)

	// an incremental pass is bounded by the budget and leaves a cursor
	e.now = func() time.Time { return t0.Add(time.Minute) }
	report, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.False(t, report.Full)

	last := remote.fetches[len(remote.fetches)-1]
	assert.Equal(t, 2, last.PageBudget)
	assert.False(t, last.Since.IsZero())

	snap, err := e.Cache(testAccount).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", snap.Cursor.NextPage)

	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, "3", remote.fetches[len(remote.fetches)-1].StartPage)
}

func TestSync_FullPassIsBoundedAndResumes(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(50), perPage: 10}
	e := newTestEngine(t, remote, newFakeCreds("tok"))
	e.opts.FullPageBudget = 3
	e.opts.FullInterval = time.Hour

	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, report.Full)
	assert.Equal(t, 3, report.Pages)
	assert.False(t, report.Complete)
	assert.Equal(t, 30, report.Added)

	// the interrupted first pass is finished, not restarted
	report, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	last := remote.fetches[len(remote.fetches)-1]
	assert.Equal(t, "4", last.StartPage)
	assert.Equal(t, 3, last.PageBudget)
	assert.True(t, last.Since.IsZero())
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 20, report.Added)

	snap, err := e.Cache(testAccount).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Cursor.NextPage)
	assert.False(t, snap.Cursor.LastSyncedAt.IsZero())
	assert.True(t, snap.Cursor.LastFullSyncAt.IsZero(), "no pass read the whole feed from page 1")

	// a periodic full pass that runs out of budget resumes unfiltered
	e.now = func() time.Time { return t0.Add(time.Minute) }
	report, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, report.Full)
	assert.False(t, report.Complete)

	report, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	last = remote.fetches[len(remote.fetches)-1]
	assert.Equal(t, "4", last.StartPage)
	assert.True(t, last.Since.IsZero())
	assert.Equal(t, 0, report.Removed, "a resumed pass never proves an item gone")
}

func TestSync_FullIntervalForcesFullPass(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(2)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))
	e.opts.FullInterval = time.Hour

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	e.now = func() time.Time { return t0.Add(30 * time.Minute) }
	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.False(t, report.Full)

	e.now = func() time.Time { return t0.Add(2 * time.Hour) }
	report, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, report.Full)
}

func TestSync_InProgress(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, &fakeRemote{}, newFakeCreds("tok"))

	t.Run("same process", func(t *testing.T) {
		release, err := e.acquire(ctx, testAccount)
		require.NoError(t, err)
		defer release()

		_, err = e.Sync(ctx, testAccount, SyncOptions{})
		require.ErrorIs(t, err, ErrSyncInProgress)
		require.ErrorIs(t, e.ResetCache(ctx, testAccount), ErrSyncInProgress)
	})

	t.Run("other process", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(e.AccountDir(testAccount), 0o700))
		other := flock.New(filepath.Join(e.AccountDir(testAccount), "sync.lock"))
		ok, err := other.TryLock()
		require.NoError(t, err)
		require.True(t, ok)
		defer func() { _ = other.Unlock() }()

		_, err = e.Sync(ctx, testAccount, SyncOptions{})
		require.ErrorIs(t, err, ErrSyncInProgress)
		require.ErrorIs(t, e.ResetCache(ctx, testAccount), ErrSyncInProgress)
	})

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
}

func TestSync_RecordsHistory(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(2)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	remote.fetchErr = gitlab.ErrUnavailable
	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.Error(t, err)

	entries, err := e.History(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Failed())
	assert.False(t, entries[1].Failed())
	assert.Equal(t, 2, entries[1].Added)
}

func TestSync_CorruptCacheHealsOnLocalOperations(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(2)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	corrupt := func() {
		require.NoError(t, os.WriteFile(e.Cache(testAccount).Path(), []byte("{not json"), 0o600))
	}
	backups := func() []string {
		matches, err := filepath.Glob(e.Cache(testAccount).Path() + ".corrupt.*")
		require.NoError(t, err)
		return matches
	}

	corrupt()
	items, err := e.List(ctx, testAccount, todo.Filter{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Len(t, backups(), 1)

	corrupt()
	pending, err := e.Pending(ctx, testAccount)
	require.NoError(t, err)
	assert.Empty(t, pending)

	corrupt()
	_, err = e.MarkDone(ctx, testAccount, "1")
	require.ErrorIs(t, err, todo.ErrNotFound, "the recovered cache is empty")

	corrupt()
	require.ErrorIs(t, e.Snooze(ctx, testAccount, "1", t0.Add(time.Hour)), todo.ErrNotFound)

	// the cursor went with the corrupt snapshot
	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.True(t, report.Full)
	assert.Empty(t, report.Recovered)
	assert.Equal(t, 2, report.Added)
}

func TestSync_EnvTokenRejectionKeepsStoredToken(t *testing.T) {
	ctx := context.Background()
	stored := newFakeCreds("good-stored-token")
	t.Setenv("GLTODO_TEST_TOKEN", "bad-env-token")
	creds := envtoken.New(stored, "GLTODO_TEST_TOKEN")

	var tokens []string
	e := New(Options{
		DataDir:     t.TempDir(),
		Credentials: creds,
		NewClient: func(_ credential.Account, token string) (Remote, error) {
			tokens = append(tokens, token)
			return &fakeRemote{fetchErr: fmt.Errorf("get todos: %w", gitlab.ErrUnauthorized)}, nil
		},
		Logger: zerolog.Nop(),
	})
	e.now = func() time.Time { return t0 }

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.ErrorIs(t, err, credential.ErrRejected)
	assert.Equal(t, []string{"bad-env-token"}, tokens)
	assert.Zero(t, stored.clears)

	cred, err := stored.Get(ctx, testAccount)
	require.NoError(t, err)
	assert.Equal(t, "good-stored-token", cred.Token)

	// without the override the stored token is used again
	t.Setenv("GLTODO_TEST_TOKEN", "")
	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.ErrorIs(t, err, credential.ErrRejected)
	assert.Equal(t, []string{"bad-env-token", "good-stored-token"}, tokens)
	assert.Equal(t, 1, stored.clears)
}

func TestSync_RateLimitStopsDelivery(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(2)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	for _, id := range []string{"1", "2"} {
		queued, err := e.MarkDone(ctx, testAccount, id)
		require.NoError(t, err)
		require.True(t, queued)
	}

	var calls []string
	remote.markDoneFn = func(_ context.Context, id string) error {
		calls = append(calls, id)
		return &gitlab.RateLimitError{RetryAfter: time.Minute}
	}

	report, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, calls, "delivery stops at the first rate limit")
	assert.Equal(t, 1, report.Failed)

	pending, err := e.Pending(ctx, testAccount)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	attempts := map[string]int{}
	for _, m := range pending {
		attempts[m.ItemID] = m.Attempts
	}
	assert.Equal(t, map[string]int{"1": 1, "2": 0}, attempts)

	// the pass still committed
	entries, err := e.History(ctx, testAccount)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.False(t, entries[0].Failed())

	items, err := e.List(ctx, testAccount, todo.Filter{})
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, todo.StateDoneUnconfirmed, it.State)
	}
}

func TestSync_ResetFromAnotherEngineIsRefusedDuringPass(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{items: feed(1)}
	e := newTestEngine(t, remote, newFakeCreds("tok"))

	_, err := e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)

	other := New(Options{
		DataDir:     e.opts.DataDir,
		Credentials: newFakeCreds("tok"),
		NewClient:   e.opts.NewClient,
		Logger:      zerolog.Nop(),
	})

	var resetErr error
	remote.fetchHook = func(ctx context.Context) {
		resetErr = other.ResetCache(ctx, testAccount)
	}

	_, err = e.Sync(ctx, testAccount, SyncOptions{})
	require.NoError(t, err)
	require.ErrorIs(t, resetErr, ErrSyncInProgress)

	items, err := e.List(ctx, testAccount, todo.Filter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	remote.fetchHook = nil
	require.NoError(t, other.ResetCache(ctx, testAccount))

	items, err = e.List(ctx, testAccount, todo.Filter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}
