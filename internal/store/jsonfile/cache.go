package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/hay-kot/gltodo/internal/core/todo"
)

// SchemaVersion is the snapshot layout written by this build.
const SchemaVersion = 1

// CacheFileName is the snapshot file inside an account directory.
const CacheFileName = "cache.json"

// ErrCorrupt is returned by Load when the snapshot cannot be read back.
var ErrCorrupt = errors.New("cache snapshot corrupt")

// Snapshot is the durable per-account state.
type Snapshot struct {
	SchemaVersion    int             `json:"schema_version"`
	Cursor           todo.Cursor     `json:"cursor"`
	Items            []todo.Item     `json:"items"`
	PendingMutations []todo.Mutation `json:"pending_mutations"`
}

// Item returns the item with the given id.
func (s Snapshot) Item(id string) (todo.Item, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return todo.Item{}, false
}

// Commit is the result of a reconciliation pass.
type Commit struct {
	Items  []todo.Item
	Cursor todo.Cursor
	// Resolved lists mutation ids to remove from the queue.
	Resolved []string
	// Attempted holds mutations whose attempt bookkeeping changed, by id.
	Attempted map[string]todo.Mutation
}

// CacheStore persists one account's Snapshot as a JSON file. Every write
// replaces the file atomically and is serialized across processes with a
// lock file next to the snapshot.
type CacheStore struct {
	dir  string
	path string

	mu   sync.Mutex
	lock *flock.Flock

	now func() time.Time
	// rename is os.Rename; tests replace it to simulate a crash before the
	// snapshot is swapped in.
	rename func(oldpath, newpath string) error
}

// NewCacheStore creates a store rooted at dir. The directory is created on
// first write.
func NewCacheStore(dir string) *CacheStore {
	return &CacheStore{
		dir:    dir,
		path:   filepath.Join(dir, CacheFileName),
		lock:   flock.New(filepath.Join(dir, "cache.lock")),
		now:    time.Now,
		rename: os.Rename,
	}
}

// Path returns the snapshot file path.
func (s *CacheStore) Path() string {
	return s.path
}

// Load returns the last committed snapshot. A missing file yields an empty
// snapshot; an unreadable one yields ErrCorrupt.
func (s *CacheStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Commit writes the result of a sync pass. Mutations queued by anyone else
// since the pass started are kept and their local effect is re-applied on
// top of c.Items.
func (s *CacheStore) Commit(ctx context.Context, c Commit) error {
	return s.withLock(ctx, func() error {
		current, err := s.load()
		if err != nil && !errors.Is(err, ErrCorrupt) {
			return err
		}

		pending := make([]todo.Mutation, 0, len(current.PendingMutations))
		for _, m := range current.PendingMutations {
			if slices.Contains(c.Resolved, m.ID) {
				continue
			}
			if updated, ok := c.Attempted[m.ID]; ok {
				m.Attempts = updated.Attempts
				m.LastError = updated.LastError
			}
			pending = append(pending, m)
		}

		items := slices.Clone(c.Items)
		index := make(map[string]int, len(items))
		for i, item := range items {
			index[item.ID] = i
		}
		for _, m := range pending {
			if i, ok := index[m.ItemID]; ok {
				items[i] = m.ApplyOptimistic(items[i])
			}
		}

		return s.save(Snapshot{
			SchemaVersion:    SchemaVersion,
			Cursor:           c.Cursor,
			Items:            items,
			PendingMutations: pending,
		})
	})
}

// ApplyMutation queues m and applies its local effect to the cached item.
// It returns false without changing anything when m is a done mutation for
// an item that is already done or already has a done queued. A snooze
// replaces any snooze already queued for the item.
func (s *CacheStore) ApplyMutation(ctx context.Context, m todo.Mutation) (bool, error) {
	var applied bool

	err := s.withLock(ctx, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}

		idx := slices.IndexFunc(snap.Items, func(i todo.Item) bool { return i.ID == m.ItemID })
		if idx < 0 {
			return fmt.Errorf("item %s: %w", m.ItemID, todo.ErrNotFound)
		}

		switch m.Kind {
		case todo.MutationDone:
			if snap.Items[idx].State.IsDone() {
				return nil
			}
			if slices.ContainsFunc(snap.PendingMutations, func(p todo.Mutation) bool {
				return p.ItemID == m.ItemID && p.Kind == todo.MutationDone
			}) {
				return nil
			}
		case todo.MutationSnooze:
			snap.PendingMutations = slices.DeleteFunc(snap.PendingMutations, func(p todo.Mutation) bool {
				return p.ItemID == m.ItemID && p.Kind == todo.MutationSnooze
			})
		default:
			return fmt.Errorf("unknown mutation kind %q", m.Kind)
		}

		snap.PendingMutations = append(snap.PendingMutations, m)
		snap.Items[idx] = m.ApplyOptimistic(snap.Items[idx])
		applied = true

		return s.save(snap)
	})

	return applied, err
}

// ResolveMutation removes every queued mutation for itemID.
func (s *CacheStore) ResolveMutation(ctx context.Context, itemID string) error {
	return s.withLock(ctx, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}

		before := len(snap.PendingMutations)
		snap.PendingMutations = slices.DeleteFunc(snap.PendingMutations, func(m todo.Mutation) bool {
			return m.ItemID == itemID
		})
		if len(snap.PendingMutations) == before {
			return nil
		}

		return s.save(snap)
	})
}

// DropMutation removes a single queued mutation by id and reverts an
// unconfirmed done on its item. It reports whether the mutation existed.
func (s *CacheStore) DropMutation(ctx context.Context, mutationID string) (bool, error) {
	var dropped bool

	err := s.withLock(ctx, func() error {
		snap, err := s.load()
		if err != nil {
			return err
		}

		idx := slices.IndexFunc(snap.PendingMutations, func(m todo.Mutation) bool { return m.ID == mutationID })
		if idx < 0 {
			return nil
		}
		m := snap.PendingMutations[idx]
		snap.PendingMutations = slices.Delete(snap.PendingMutations, idx, idx+1)

		for i, item := range snap.Items {
			if item.ID != m.ItemID {
				continue
			}
			switch m.Kind {
			case todo.MutationDone:
				if item.State == todo.StateDoneUnconfirmed {
					item.State = todo.StatePending
					item.CompletedAt = time.Time{}
				}
			case todo.MutationSnooze:
				item.SnoozedUntil = time.Time{}
			}
			snap.Items[i] = item
		}

		dropped = true
		return s.save(snap)
	})

	return dropped, err
}

// Reset deletes the snapshot.
func (s *CacheStore) Reset(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cache: %w", err)
		}
		return nil
	})
}

// Quarantine moves an unreadable snapshot aside so a fresh one can be
// written, and returns the backup path. It returns "" when the snapshot is
// missing or readable by the time the lock is held.
func (s *CacheStore) Quarantine(ctx context.Context) (string, error) {
	var backup string

	err := s.withLock(ctx, func() error {
		// Another process may have recovered the snapshot already.
		if _, err := s.load(); !errors.Is(err, ErrCorrupt) {
			return nil
		}

		backup = fmt.Sprintf("%s.corrupt.%s", s.path, s.now().Format("20060102-150405"))
		if err := os.Rename(s.path, backup); err != nil {
			if os.IsNotExist(err) {
				backup = ""
				return nil
			}
			return fmt.Errorf("backup corrupt cache: %w", err)
		}
		return nil
	})

	return backup, err
}

// withLock serializes fn against this process and other gltodo processes.
func (s *CacheStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	ok, err := s.lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock cache: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

// load reads the snapshot from disk. Callers hold s.mu.
func (s *CacheStore) load() (Snapshot, error) {
	empty := Snapshot{SchemaVersion: SchemaVersion}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return Snapshot{}, fmt.Errorf("read cache: %w", err)
	}

	if len(data) == 0 {
		return empty, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if snap.SchemaVersion != SchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: unsupported schema version %d", ErrCorrupt, snap.SchemaVersion)
	}

	for i, item := range snap.Items {
		if item.ID == "" || !item.State.IsValid() {
			return Snapshot{}, fmt.Errorf("%w: invalid item at index %d", ErrCorrupt, i)
		}
	}

	return snap, nil
}

// save writes the snapshot atomically. Callers hold s.mu.
func (s *CacheStore) save(snap Snapshot) error {
	snap.SchemaVersion = SchemaVersion
	if snap.Items == nil {
		snap.Items = []todo.Item{}
	}
	if snap.PendingMutations == nil {
		snap.PendingMutations = []todo.Mutation{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	if err := writeAtomic(s.path, data, s.rename); err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}
