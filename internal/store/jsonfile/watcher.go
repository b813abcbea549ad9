package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 16
)

// ChangeEvent reports that a new snapshot was committed.
type ChangeEvent struct {
	Path      string
	Timestamp time.Time
}

// CacheWatcher notifies subscribers when the snapshot file of a CacheStore
// is replaced, e.g. by a sync running in another process.
type CacheWatcher struct {
	dir     string
	file    string
	watcher *fsnotify.Watcher

	mu          sync.Mutex
	subscribers []chan ChangeEvent
	debounce    *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCacheWatcher watches the directory holding store's snapshot. The
// directory is created if it doesn't exist. Watching the directory rather
// than the file survives the rename performed by every commit.
func NewCacheWatcher(store *CacheStore) (*CacheWatcher, error) {
	if err := os.MkdirAll(store.dir, 0o700); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(store.dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw := &CacheWatcher{
		dir:     store.dir,
		file:    filepath.Base(store.path),
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}

	cw.wg.Add(1)
	go cw.run()

	return cw, nil
}

// Watch returns a channel that receives an event after each commit. The
// channel is closed when ctx is done or the watcher is closed.
func (cw *CacheWatcher) Watch(ctx context.Context) <-chan ChangeEvent {
	ch := make(chan ChangeEvent, eventBufferSize)

	cw.mu.Lock()
	cw.subscribers = append(cw.subscribers, ch)
	cw.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			cw.unsubscribe(ch)
		case <-cw.ctx.Done():
		}
	}()

	return ch
}

// Close stops watching and closes all subscriber channels.
func (cw *CacheWatcher) Close() error {
	cw.cancel()

	cw.mu.Lock()
	if cw.debounce != nil {
		cw.debounce.Stop()
	}
	for _, ch := range cw.subscribers {
		close(ch)
	}
	cw.subscribers = nil
	cw.mu.Unlock()

	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}

func (cw *CacheWatcher) unsubscribe(ch chan ChangeEvent) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for i, sub := range cw.subscribers {
		if sub == ch {
			cw.subscribers = append(cw.subscribers[:i], cw.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (cw *CacheWatcher) run() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleEvent(event)
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (cw *CacheWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	// Temp files and the lock file share the directory.
	if filepath.Base(event.Name) != cw.file {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounce != nil {
		cw.debounce.Stop()
	}
	cw.debounce = time.AfterFunc(debounceDelay, cw.notify)
}

func (cw *CacheWatcher) notify() {
	event := ChangeEvent{
		Path:      filepath.Join(cw.dir, cw.file),
		Timestamp: time.Now(),
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, ch := range cw.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber is behind; it will still see the latest snapshot
		}
	}
	cw.debounce = nil
}
