// Package todo defines the GitLab to-do domain model: items, sync cursors and
// locally queued mutations, plus read-only projections over them.
package todo

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a to-do item does not exist in the local cache.
var ErrNotFound = errors.New("todo item not found")

// Action is the reason GitLab created a to-do. Values GitLab adds in the
// future decode as-is; use Known to tell them apart from the built-in set.
type Action string

const (
	ActionAssigned              Action = "assigned"
	ActionMentioned             Action = "mentioned"
	ActionBuildFailed           Action = "build_failed"
	ActionMarked                Action = "marked"
	ActionApprovalRequired      Action = "approval_required"
	ActionUnmergeable           Action = "unmergeable"
	ActionDirectlyAddressed     Action = "directly_addressed"
	ActionMergeTrainRemoved     Action = "merge_train_removed"
	ActionReviewRequested       Action = "review_requested"
	ActionMemberAccessRequested Action = "member_access_requested"
	ActionReviewSubmitted       Action = "review_submitted"
)

// ActionUnknown is used when the remote omits the action entirely.
const ActionUnknown Action = "unknown"

var knownActions = map[Action]struct{}{
	ActionAssigned:              {},
	ActionMentioned:             {},
	ActionBuildFailed:           {},
	ActionMarked:                {},
	ActionApprovalRequired:      {},
	ActionUnmergeable:           {},
	ActionDirectlyAddressed:     {},
	ActionMergeTrainRemoved:     {},
	ActionReviewRequested:       {},
	ActionMemberAccessRequested: {},
	ActionReviewSubmitted:       {},
}

// Known reports whether a is one of the actions this build understands.
func (a Action) Known() bool {
	_, ok := knownActions[a]
	return ok
}

// ParseAction converts a raw remote action name. It never fails: unrecognized
// names are preserved verbatim and an empty name becomes ActionUnknown.
func ParseAction(raw string) Action {
	if raw == "" {
		return ActionUnknown
	}
	return Action(raw)
}

// UnmarshalJSON implements json.Unmarshaler via ParseAction.
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = ParseAction(raw)
	return nil
}

// State is the lifecycle state of an item as seen locally.
type State string

const (
	StatePending State = "pending"
	// StateDoneUnconfirmed marks an item the user completed locally whose
	// mark-done call has not been acknowledged by GitLab yet.
	StateDoneUnconfirmed State = "done_unconfirmed"
	StateDone            State = "done"
)

// IsValid reports whether s is a recognized state.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateDoneUnconfirmed, StateDone:
		return true
	}
	return false
}

// IsDone reports whether the item counts as completed from the user's view.
func (s State) IsDone() bool {
	return s == StateDone || s == StateDoneUnconfirmed
}

// Item is a single GitLab to-do.
type Item struct {
	ID          string    `json:"id"`
	Project     string    `json:"project"`
	Author      string    `json:"author"`
	Action      Action    `json:"action"`
	TargetType  string    `json:"target_type,omitempty"`
	TargetTitle string    `json:"target_title,omitempty"`
	TargetURL   string    `json:"target_url"`
	Body        string    `json:"body,omitempty"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Local-only fields, never sent to GitLab.
	CompletedAt  time.Time `json:"completed_at,omitzero"`
	SnoozedUntil time.Time `json:"snoozed_until,omitzero"`
}

// Snoozed reports whether the item is hidden by a snooze at now.
func (i Item) Snoozed(now time.Time) bool {
	return !i.SnoozedUntil.IsZero() && i.SnoozedUntil.After(now)
}

// Cursor records fetch progress for one account.
type Cursor struct {
	// NextPage is the page to resume from. Empty means the previous pass
	// reached the end of the feed.
	NextPage string `json:"next_page,omitempty"`
	// ResumeSince is the updated-after filter of the interrupted pass, so
	// resumed pages line up with the ones already read. Zero for a full pass.
	ResumeSince    time.Time `json:"resume_since,omitzero"`
	LastSyncedAt   time.Time `json:"last_synced_at,omitzero"`
	LastFullSyncAt time.Time `json:"last_full_sync_at,omitzero"`
}

// Terminal reports whether the cursor has no continuation.
func (c Cursor) Terminal() bool {
	return c.NextPage == ""
}

// MutationKind is the type of a locally issued change.
type MutationKind string

const (
	MutationDone   MutationKind = "done"
	MutationSnooze MutationKind = "snooze"
)

// Mutation is a user action that has not been confirmed by GitLab yet.
type Mutation struct {
	ID          string       `json:"id"`
	ItemID      string       `json:"item_id"`
	Kind        MutationKind `json:"kind"`
	SnoozeUntil time.Time    `json:"snooze_until,omitzero"`
	IssuedAt    time.Time    `json:"issued_at"`
	Attempts    int          `json:"attempts"`
	LastError   string       `json:"last_error,omitempty"`
}

// ApplyOptimistic returns item with the mutation's local effect applied.
func (m Mutation) ApplyOptimistic(item Item) Item {
	switch m.Kind {
	case MutationDone:
		if item.State == StatePending {
			item.State = StateDoneUnconfirmed
		}
		if item.CompletedAt.IsZero() {
			item.CompletedAt = m.IssuedAt
		}
	case MutationSnooze:
		item.SnoozedUntil = m.SnoozeUntil
	}
	return item
}
