package todo

import (
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// SortOrder selects how Apply orders its result.
type SortOrder string

const (
	SortUpdated  SortOrder = "updated"
	SortPriority SortOrder = "priority"
)

// Filter controls which items Apply returns. Zero values match everything,
// except that snoozed items are hidden unless IncludeSnoozed is set.
type Filter struct {
	// Projects are doublestar patterns matched against the project path,
	// e.g. "group/**" or "group/*-api".
	Projects       []string
	Authors        []string
	Actions        []Action
	States         []State
	Since          time.Time // updated_at >= Since
	Until          time.Time // updated_at < Until
	CreatedSince   time.Time
	IncludeSnoozed bool
	Sort           SortOrder
	Limit          int

	// Now is the reference time for snooze checks; zero means time.Now().
	Now time.Time
}

// Apply filters and sorts items. The input slice is not modified.
func Apply(items []Item, f Filter) []Item {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}

	out := make([]Item, 0, len(items))
	for _, item := range items {
		if f.Match(item, now) {
			out = append(out, item)
		}
	}

	switch f.Sort {
	case SortPriority:
		slices.SortStableFunc(out, func(a, b Item) int {
			if pa, pb := Priority(a), Priority(b); pa != pb {
				return pb - pa
			}
			return b.UpdatedAt.Compare(a.UpdatedAt)
		})
	default:
		slices.SortStableFunc(out, func(a, b Item) int {
			if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out
}

// Match reports whether a single item passes the filter at now.
func (f Filter) Match(item Item, now time.Time) bool {
	if !f.IncludeSnoozed && item.Snoozed(now) {
		return false
	}

	if len(f.Projects) > 0 && !matchAnyGlob(f.Projects, item.Project) {
		return false
	}

	if len(f.Authors) > 0 && !slices.ContainsFunc(f.Authors, func(a string) bool {
		return strings.EqualFold(a, item.Author)
	}) {
		return false
	}

	if len(f.Actions) > 0 && !slices.Contains(f.Actions, item.Action) {
		return false
	}

	if len(f.States) > 0 && !slices.Contains(f.States, item.State) {
		return false
	}

	if !f.Since.IsZero() && item.UpdatedAt.Before(f.Since) {
		return false
	}

	if !f.Until.IsZero() && !item.UpdatedAt.Before(f.Until) {
		return false
	}

	if !f.CreatedSince.IsZero() && item.CreatedAt.Before(f.CreatedSince) {
		return false
	}

	return true
}

func matchAnyGlob(patterns []string, project string) bool {
	for _, p := range patterns {
		// Validated at flag parsing; a bad pattern simply never matches.
		if ok, err := doublestar.Match(p, project); err == nil && ok {
			return true
		}
	}
	return false
}

// ValidateProjectPattern reports whether p is a usable project pattern.
func ValidateProjectPattern(p string) bool {
	return doublestar.ValidatePattern(p)
}
