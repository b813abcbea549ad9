package engine

import (
	"slices"
	"strings"
	"time"

	"github.com/hay-kot/gltodo/internal/core/todo"
)

// MergeResult is the working set produced by Merge.
type MergeResult struct {
	Items     []todo.Item
	Added     int
	Updated   int
	Removed   int
	Unchanged int
	// Superseded lists queued done mutations made obsolete because the
	// remote reissued their item as pending after they were issued.
	Superseded []string
}

// Merge reconciles a fetched batch of remote items with the cached ones.
// It is pure: the same inputs always produce the same result.
//
// Rules:
//   - an id not seen locally is inserted
//   - a remote item with a strictly newer updated_at replaces the local one,
//     keeping local-only fields; a pending reissue only reopens a locally
//     done item when it is strictly newer than the local completion
//   - otherwise the local item is kept
//   - when complete is set, local items that are not done and are missing
//     from remote were resolved elsewhere and become done
func Merge(local, remote []todo.Item, pending []todo.Mutation, complete bool, now time.Time) MergeResult {
	var res MergeResult

	index := make(map[string]int, len(local))
	items := make([]todo.Item, 0, len(local)+len(remote))
	for _, item := range local {
		index[item.ID] = len(items)
		items = append(items, item)
	}

	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if seen[r.ID] {
			// pages can shift while paging; the first copy is the newest
			continue
		}
		seen[r.ID] = true

		i, ok := index[r.ID]
		if !ok {
			index[r.ID] = len(items)
			items = append(items, r)
			res.Added++
			continue
		}

		merged, changed, reopened := mergeItem(items[i], r)
		items[i] = merged
		if changed {
			res.Updated++
		} else {
			res.Unchanged++
		}

		if reopened {
			for _, m := range pending {
				if m.ItemID == r.ID && m.Kind == todo.MutationDone && m.IssuedAt.Before(r.UpdatedAt) {
					res.Superseded = append(res.Superseded, m.ID)
				}
			}
		}
	}

	if complete {
		for i, item := range items {
			if seen[item.ID] || item.State == todo.StateDone {
				continue
			}
			item.State = todo.StateDone
			if item.CompletedAt.IsZero() {
				item.CompletedAt = now
			}
			items[i] = item
			res.Removed++
		}
	}

	slices.SortStableFunc(items, func(a, b todo.Item) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	res.Items = items
	return res
}

// mergeItem resolves one id present on both sides. It reports whether the
// local copy changed and whether a locally done item was reopened.
func mergeItem(l, r todo.Item) (todo.Item, bool, bool) {
	if !r.UpdatedAt.After(l.UpdatedAt) {
		// The remote may confirm a done we were waiting on without bumping
		// updated_at.
		if l.State == todo.StateDoneUnconfirmed && r.State == todo.StateDone {
			l.State = todo.StateDone
			return l, true, false
		}
		return l, false, false
	}

	if l.State.IsDone() && r.State == todo.StatePending {
		if !l.CompletedAt.IsZero() && !r.UpdatedAt.After(l.CompletedAt) {
			// stale pending: refresh metadata, keep local intent
			r.State = l.State
			r.CompletedAt = l.CompletedAt
			r.SnoozedUntil = l.SnoozedUntil
			return r, true, false
		}
		r.SnoozedUntil = l.SnoozedUntil
		return r, true, true
	}

	r.CompletedAt = l.CompletedAt
	r.SnoozedUntil = l.SnoozedUntil
	if r.State == todo.StateDone && r.CompletedAt.IsZero() {
		r.CompletedAt = r.UpdatedAt
	}
	return r, true, false
}
