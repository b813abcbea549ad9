// Package engine reconciles a GitLab account's to-do feed with its local
// cache and applies the user's queued mutations.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/history"
	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/gitlab"
	"github.com/hay-kot/gltodo/internal/store/jsonfile"
)

// Remote is the part of the GitLab client the engine uses.
type Remote interface {
	FetchTodos(ctx context.Context, opts gitlab.FetchOptions) (gitlab.FetchResult, error)
	MarkDone(ctx context.Context, id string) error
	CurrentUser(ctx context.Context) (gitlab.User, error)
}

// ClientFactory builds a Remote for an account and token.
type ClientFactory func(account credential.Account, token string) (Remote, error)

// Options configures an Engine.
type Options struct {
	// DataDir holds one directory per account under accounts/.
	DataDir     string
	Credentials credential.Store
	NewClient   ClientFactory

	// PageBudget bounds pages fetched by an incremental pass.
	PageBudget int
	// FullPageBudget bounds a full pass. Only a full pass that reaches the
	// end of the feed within it detects items resolved elsewhere.
	FullPageBudget int
	PerPage        int
	// FullInterval forces a full pass when the last one is older.
	FullInterval time.Duration
	// MaxMutationAttempts is the attempt count at which a failing mutation
	// is reported as exhausted.
	MaxMutationAttempts int
	HistoryEntries      int

	Logger zerolog.Logger
}

// Engine runs sync passes and local operations for any number of accounts.
type Engine struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	mu      sync.Mutex
	passes  map[string]*sync.Mutex
	caches  map[string]*jsonfile.CacheStore
	history map[string]*jsonfile.HistoryStore
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.PerPage <= 0 {
		opts.PerPage = 20
	}
	if opts.PageBudget <= 0 {
		opts.PageBudget = 10
	}
	if opts.FullPageBudget <= 0 {
		opts.FullPageBudget = 100
	}
	if opts.MaxMutationAttempts <= 0 {
		opts.MaxMutationAttempts = 5
	}
	if opts.HistoryEntries <= 0 {
		opts.HistoryEntries = history.DefaultMaxEntries
	}
	if opts.NewClient == nil {
		opts.NewClient = func(account credential.Account, token string) (Remote, error) {
			return gitlab.New(gitlab.Options{BaseURL: account.BaseURL, Token: token, Logger: opts.Logger})
		}
	}

	return &Engine{
		opts:    opts,
		log:     opts.Logger,
		now:     time.Now,
		passes:  make(map[string]*sync.Mutex),
		caches:  make(map[string]*jsonfile.CacheStore),
		history: make(map[string]*jsonfile.HistoryStore),
	}
}

// AccountDir returns the directory holding an account's cache and locks.
func (e *Engine) AccountDir(account credential.Account) string {
	return filepath.Join(e.opts.DataDir, "accounts", account.Slug())
}

// Cache returns the cache store for an account. The same store is returned
// for every call so in-process writers share one mutex.
func (e *Engine) Cache(account credential.Account) *jsonfile.CacheStore {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := account.Key()
	s, ok := e.caches[key]
	if !ok {
		s = jsonfile.NewCacheStore(e.AccountDir(account))
		e.caches[key] = s
	}
	return s
}

func (e *Engine) historyStore(account credential.Account) *jsonfile.HistoryStore {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := account.Key()
	s, ok := e.history[key]
	if !ok {
		s = jsonfile.NewHistoryStore(e.AccountDir(account))
		e.history[key] = s
	}
	return s
}

func (e *Engine) passLock(account credential.Account) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := account.Key()
	m, ok := e.passes[key]
	if !ok {
		m = &sync.Mutex{}
		e.passes[key] = m
	}
	return m
}

// MarkDone queues a done mutation for itemID and applies it locally. It
// never touches the network; the next sync pass delivers it. It returns
// false when the item is already done or already has a done queued.
func (e *Engine) MarkDone(ctx context.Context, account credential.Account, itemID string) (bool, error) {
	m := todo.Mutation{
		ID:       uuid.NewString(),
		ItemID:   itemID,
		Kind:     todo.MutationDone,
		IssuedAt: e.now().UTC(),
	}

	var queued bool
	err := e.healing(ctx, account, func() (err error) {
		queued, err = e.Cache(account).ApplyMutation(ctx, m)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("queue done: %w", err)
	}

	if queued {
		e.log.Debug().Ctx(ctx).Str("item", itemID).Str("mutation", m.ID).Msg("queued done")
	}
	return queued, nil
}

// Snooze hides itemID from default listings until the given time.
func (e *Engine) Snooze(ctx context.Context, account credential.Account, itemID string, until time.Time) error {
	if !until.After(e.now()) {
		return fmt.Errorf("snooze %s: time %s is in the past", itemID, until.Format(time.RFC3339))
	}

	m := todo.Mutation{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		Kind:        todo.MutationSnooze,
		SnoozeUntil: until.UTC(),
		IssuedAt:    e.now().UTC(),
	}

	err := e.healing(ctx, account, func() error {
		_, err := e.Cache(account).ApplyMutation(ctx, m)
		return err
	})
	if err != nil {
		return fmt.Errorf("queue snooze: %w", err)
	}
	return nil
}

// List returns the committed items matching f. It never syncs.
func (e *Engine) List(ctx context.Context, account credential.Account, f todo.Filter) ([]todo.Item, error) {
	snap, _, err := e.loadCache(ctx, account)
	if err != nil {
		return nil, err
	}

	if f.Now.IsZero() {
		f.Now = e.now()
	}
	return todo.Apply(snap.Items, f), nil
}

// Pending returns the queued mutations.
func (e *Engine) Pending(ctx context.Context, account credential.Account) ([]todo.Mutation, error) {
	snap, _, err := e.loadCache(ctx, account)
	if err != nil {
		return nil, err
	}
	return snap.PendingMutations, nil
}

// DropMutation abandons a queued mutation and reverts its local effect.
func (e *Engine) DropMutation(ctx context.Context, account credential.Account, mutationID string) error {
	var dropped bool
	err := e.healing(ctx, account, func() (err error) {
		dropped, err = e.Cache(account).DropMutation(ctx, mutationID)
		return err
	})
	if err != nil {
		return fmt.Errorf("drop mutation: %w", err)
	}
	if !dropped {
		return fmt.Errorf("mutation %s: %w", mutationID, todo.ErrNotFound)
	}
	return nil
}

// History returns recent sync passes, newest first.
func (e *Engine) History(ctx context.Context, account credential.Account) ([]history.Entry, error) {
	return e.historyStore(account).List(ctx)
}

// SyncHealth summarizes recent sync passes.
func (e *Engine) SyncHealth(ctx context.Context, account credential.Account) (history.Health, error) {
	return e.historyStore(account).Health(ctx)
}

// Login verifies token against GitLab and stores it for the account.
func (e *Engine) Login(ctx context.Context, account credential.Account, token string) (credential.Credential, error) {
	client, err := e.opts.NewClient(account, token)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("create client: %w", err)
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, gitlab.ErrUnauthorized) {
			return credential.Credential{}, fmt.Errorf("verify token: %w", credential.ErrRejected)
		}
		return credential.Credential{}, fmt.Errorf("verify token: %w", err)
	}

	cred := credential.Credential{Account: account, Token: token, Username: user.Username}
	if err := e.opts.Credentials.Store(ctx, cred); err != nil {
		return credential.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	e.log.Info().Ctx(ctx).Str("user", user.Username).Msg("logged in")
	return cred, nil
}

// Verify checks the account's current credential against GitLab without
// storing or clearing anything.
func (e *Engine) Verify(ctx context.Context, account credential.Account) (gitlab.User, error) {
	cred, err := e.opts.Credentials.Get(ctx, account)
	if err != nil {
		return gitlab.User{}, fmt.Errorf("get credential: %w", err)
	}

	client, err := e.opts.NewClient(account, cred.Token)
	if err != nil {
		return gitlab.User{}, fmt.Errorf("create client: %w", err)
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, gitlab.ErrUnauthorized) {
			return gitlab.User{}, fmt.Errorf("verify token: %w", credential.ErrRejected)
		}
		return gitlab.User{}, fmt.Errorf("verify token: %w", err)
	}
	return user, nil
}

// Logout removes the account's stored credential.
func (e *Engine) Logout(ctx context.Context, account credential.Account) error {
	if err := e.opts.Credentials.Clear(ctx, account); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

// Status returns the stored credential for the account.
func (e *Engine) Status(ctx context.Context, account credential.Account) (credential.Credential, error) {
	return e.opts.Credentials.Get(ctx, account)
}

// ResetCache discards the account's cache and sync history. The next pass
// is a full one. It fails with ErrSyncInProgress while a pass holds the
// account, in this process or another.
func (e *Engine) ResetCache(ctx context.Context, account credential.Account) error {
	release, err := e.acquire(ctx, account)
	if err != nil {
		return err
	}
	defer release()

	if err := e.Cache(account).Reset(ctx); err != nil {
		return err
	}
	return e.historyStore(account).Clear(ctx)
}

// loadCache reads the account's snapshot. A corrupt snapshot is moved aside
// and loading continues with an empty cache; the returned backup path is
// then non-empty. The missing cursor makes the next pass a full one.
func (e *Engine) loadCache(ctx context.Context, account credential.Account) (jsonfile.Snapshot, string, error) {
	cache := e.Cache(account)

	snap, err := cache.Load(ctx)
	if err == nil {
		return snap, "", nil
	}
	if !errors.Is(err, jsonfile.ErrCorrupt) {
		return jsonfile.Snapshot{}, "", fmt.Errorf("load cache: %w", err)
	}

	backup, err := e.recoverCache(ctx, account, err)
	if err != nil {
		return jsonfile.Snapshot{}, "", err
	}

	snap, err = cache.Load(ctx)
	if err != nil {
		return jsonfile.Snapshot{}, "", fmt.Errorf("load cache: %w", err)
	}
	return snap, backup, nil
}

// healing runs fn, and when it fails on a corrupt snapshot, moves the
// snapshot aside and runs fn once more.
func (e *Engine) healing(ctx context.Context, account credential.Account, fn func() error) error {
	err := fn()
	if !errors.Is(err, jsonfile.ErrCorrupt) {
		return err
	}

	if _, err := e.recoverCache(ctx, account, err); err != nil {
		return err
	}
	return fn()
}

func (e *Engine) recoverCache(ctx context.Context, account credential.Account, cause error) (string, error) {
	backup, err := e.Cache(account).Quarantine(ctx)
	if err != nil {
		return "", fmt.Errorf("recover cache: %w", err)
	}
	if backup != "" {
		e.log.Warn().Ctx(ctx).Err(cause).Str("backup", backup).Msg("cache corrupt, moved aside; next sync is a full one")
	}
	return backup, nil
}
