package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/core/history"
	"github.com/hay-kot/gltodo/internal/core/logging"
	"github.com/hay-kot/gltodo/internal/core/todo"
	"github.com/hay-kot/gltodo/internal/gitlab"
	"github.com/hay-kot/gltodo/internal/store/jsonfile"
)

// sinceOverlap widens incremental fetches to cover items updated while the
// previous pass was running and small clock differences with the remote.
const sinceOverlap = time.Minute

// SyncOptions controls one pass.
type SyncOptions struct {
	// Full ignores the cursor, reads the whole feed and detects items
	// resolved elsewhere.
	Full bool
}

// Report summarizes a pass.
type Report struct {
	PassID    string        `json:"pass_id"`
	Account   string        `json:"account"`
	Full      bool          `json:"full"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Removed   int           `json:"removed"`
	Unchanged int           `json:"unchanged"`
	Resolved  int           `json:"resolved"`
	Failed    int           `json:"failed"`
	Pages     int           `json:"pages"`
	Complete  bool          `json:"complete"`
	Duration  time.Duration `json:"duration"`
	// RateLimitRemaining is the remote request budget after the pass, or
	// -1 when GitLab did not advertise one.
	RateLimitRemaining int `json:"rate_limit_remaining"`
	// Recovered is the backup path of a corrupt cache that was discarded.
	Recovered string           `json:"recovered,omitempty"`
	Exhausted []*MutationError `json:"exhausted,omitempty"`
}

// Sync runs one reconciliation pass for the account: fetch, merge, deliver
// queued mutations, commit. Nothing is committed when the pass fails or ctx
// is cancelled; the cache keeps its last committed snapshot.
func (e *Engine) Sync(ctx context.Context, account credential.Account, opts SyncOptions) (Report, error) {
	started := e.now()
	report := Report{
		PassID:             uuid.NewString(),
		Account:            account.Key(),
		RateLimitRemaining: -1,
	}

	ctx = logging.WithPassID(logging.WithAccount(ctx, account.Key()), report.PassID)

	release, err := e.acquire(ctx, account)
	if err != nil {
		return report, err
	}
	defer release()

	err = e.sync(ctx, account, opts, &report)
	report.Duration = e.now().Sub(started)

	e.record(ctx, account, started, report, err)

	if err != nil {
		e.log.Warn().Ctx(ctx).Err(err).Msg("sync failed")
		return report, err
	}

	e.log.Info().Ctx(ctx).
		Int("added", report.Added).
		Int("updated", report.Updated).
		Int("removed", report.Removed).
		Int("resolved", report.Resolved).
		Int("failed", report.Failed).
		Int("pages", report.Pages).
		Bool("complete", report.Complete).
		Dur("duration", report.Duration).
		Msg("sync finished")

	return report, nil
}

// acquire takes the account's pass lock in this process and across processes.
func (e *Engine) acquire(ctx context.Context, account credential.Account) (func(), error) {
	mu := e.passLock(account)
	if !mu.TryLock() {
		return nil, ErrSyncInProgress
	}

	dir := e.AccountDir(account)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("create account dir: %w", err)
	}

	fl := flock.New(filepath.Join(dir, "sync.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("lock account: %w", err)
	}
	if !ok {
		mu.Unlock()
		return nil, ErrSyncInProgress
	}

	return func() {
		_ = fl.Unlock()
		mu.Unlock()
	}, nil
}

func (e *Engine) sync(ctx context.Context, account credential.Account, opts SyncOptions, report *Report) error {
	cred, err := e.opts.Credentials.Get(ctx, account)
	if err != nil {
		return fmt.Errorf("get credential: %w", err)
	}

	client, err := e.opts.NewClient(account, cred.Token)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	cache := e.Cache(account)
	snap, backup, err := e.loadCache(ctx, account)
	if err != nil {
		return err
	}
	if backup != "" {
		report.Recovered = backup
		opts.Full = true
	}

	fetchOpts := e.fetchOptions(snap.Cursor, opts.Full)
	report.Full = fetchOpts.StartPage == "" && fetchOpts.Since.IsZero()

	fetched, err := client.FetchTodos(ctx, fetchOpts)
	if err != nil {
		if errors.Is(err, gitlab.ErrUnauthorized) {
			return e.reject(ctx, cred, err)
		}
		return fmt.Errorf("fetch todos: %w", err)
	}

	report.Pages = fetched.Pages
	report.Complete = fetched.Complete
	report.RateLimitRemaining = fetched.RateLimitRemaining

	merged := Merge(snap.Items, fetched.Items, snap.PendingMutations, fetched.Complete, e.now().UTC())
	report.Added = merged.Added
	report.Updated = merged.Updated
	report.Removed = merged.Removed
	report.Unchanged = merged.Unchanged

	commit := jsonfile.Commit{
		Items:     merged.Items,
		Cursor:    e.nextCursor(snap.Cursor, fetchOpts, fetched),
		Resolved:  merged.Superseded,
		Attempted: map[string]todo.Mutation{},
	}

	if err := e.deliver(ctx, cred, client, snap.PendingMutations, &commit, report); err != nil {
		return err
	}

	if err := cache.Commit(ctx, commit); err != nil {
		return fmt.Errorf("commit cache: %w", err)
	}

	if rem, ok := client.(interface{ RateLimitRemaining() int }); ok {
		report.RateLimitRemaining = rem.RateLimitRemaining()
	}
	return nil
}

func (e *Engine) fetchOptions(cursor todo.Cursor, full bool) gitlab.FetchOptions {
	fo := gitlab.FetchOptions{
		PageBudget: e.opts.PageBudget,
		PerPage:    e.opts.PerPage,
	}

	// A pass that ran out of budget is finished before anything else, or a
	// feed larger than one budget would restart from page 1 forever.
	resuming := !full && cursor.NextPage != ""
	if !full && !resuming {
		full = cursor.LastSyncedAt.IsZero() ||
			(e.opts.FullInterval > 0 && e.now().Sub(cursor.LastFullSyncAt) > e.opts.FullInterval)
	}

	switch {
	case full:
		fo.PageBudget = e.opts.FullPageBudget
	case resuming:
		fo.StartPage = cursor.NextPage
		fo.Since = cursor.ResumeSince
		if fo.Since.IsZero() {
			fo.PageBudget = e.opts.FullPageBudget
		}
	default:
		fo.Since = cursor.LastSyncedAt.Add(-sinceOverlap)
	}

	return fo
}

func (e *Engine) nextCursor(prev todo.Cursor, fo gitlab.FetchOptions, fetched gitlab.FetchResult) todo.Cursor {
	now := e.now().UTC()

	next := todo.Cursor{
		NextPage:       fetched.NextPage,
		LastSyncedAt:   prev.LastSyncedAt,
		LastFullSyncAt: prev.LastFullSyncAt,
	}
	if fetched.NextPage == "" {
		next.LastSyncedAt = now
	} else {
		next.ResumeSince = fo.Since
	}
	if fetched.Complete {
		next.LastFullSyncAt = now
	}
	return next
}

// deliver pushes the mutations that were queued when the pass started.
// Mutations queued since then wait for the next pass.
func (e *Engine) deliver(
	ctx context.Context,
	cred credential.Credential,
	client Remote,
	queued []todo.Mutation,
	commit *jsonfile.Commit,
	report *Report,
) error {
	index := make(map[string]int, len(commit.Items))
	for i, item := range commit.Items {
		index[item.ID] = i
	}

	resolve := func(m todo.Mutation) {
		commit.Resolved = append(commit.Resolved, m.ID)
		report.Resolved++
	}

	for _, m := range queued {
		if slices.Contains(commit.Resolved, m.ID) {
			continue
		}

		i, ok := index[m.ItemID]
		if !ok {
			resolve(m)
			continue
		}

		if m.Kind == todo.MutationSnooze {
			resolve(m)
			continue
		}

		// The remote already reflects the intent, possibly from an earlier
		// call whose response we never saw.
		if commit.Items[i].State == todo.StateDone {
			resolve(m)
			continue
		}

		err := client.MarkDone(ctx, m.ItemID)
		switch {
		case err == nil:
			item := commit.Items[i]
			item.State = todo.StateDone
			if item.CompletedAt.IsZero() {
				item.CompletedAt = m.IssuedAt
			}
			commit.Items[i] = item
			resolve(m)
		case errors.Is(err, gitlab.ErrUnauthorized):
			return e.reject(ctx, cred, err)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			m.Attempts++
			m.LastError = err.Error()
			commit.Attempted[m.ID] = m
			report.Failed++

			e.log.Warn().Ctx(ctx).Err(err).Str("item", m.ItemID).Int("attempts", m.Attempts).Msg("mark done failed")

			if m.Attempts >= e.opts.MaxMutationAttempts {
				report.Exhausted = append(report.Exhausted, &MutationError{
					MutationID: m.ID,
					ItemID:     m.ItemID,
					Attempts:   m.Attempts,
					Err:        m.LastError,
				})
			}

			if errors.Is(err, gitlab.ErrRateLimited) {
				// every further call would fail the same way
				return nil
			}
		}
	}

	return nil
}

// reject reports the credential rejected, clearing it first when it came
// from the credential store. An environment token is left alone, as is the
// stored token it shadows, which was never sent.
func (e *Engine) reject(ctx context.Context, cred credential.Credential, cause error) error {
	if !cred.Clearable() {
		e.log.Warn().Ctx(ctx).Err(cause).Str("source", string(cred.Source)).Msg("token rejected")
		return fmt.Errorf("%s token: %w", cred.Source, credential.ErrRejected)
	}

	e.log.Warn().Ctx(ctx).Err(cause).Msg("token rejected, clearing credential")

	if err := e.opts.Credentials.Clear(ctx, cred.Account); err != nil {
		return fmt.Errorf("%w: clear credential: %v", credential.ErrRejected, err)
	}
	return credential.ErrRejected
}

func (e *Engine) record(ctx context.Context, account credential.Account, started time.Time, r Report, err error) {
	entry := history.Entry{
		PassID:    r.PassID,
		Full:      r.Full,
		StartedAt: started.UTC(),
		Duration:  r.Duration,
		Added:     r.Added,
		Updated:   r.Updated,
		Removed:   r.Removed,
		Resolved:  r.Resolved,
		Failures:  r.Failed,
		Pages:     r.Pages,
		Complete:  r.Complete,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	// A cancelled caller still gets the record written.
	if serr := e.historyStore(account).Record(context.WithoutCancel(ctx), entry, e.opts.HistoryEntries); serr != nil {
		e.log.Warn().Ctx(ctx).Err(serr).Msg("record sync history")
	}
}
