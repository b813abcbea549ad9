// Package history defines the record kept for each sync pass.
package history

import "time"

// DefaultMaxEntries bounds the per-account history file.
const DefaultMaxEntries = 50

// Entry records the outcome of one sync pass.
type Entry struct {
	PassID    string        `json:"pass_id"`
	Full      bool          `json:"full"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Added     int           `json:"added"`
	Updated   int           `json:"updated"`
	Removed   int           `json:"removed"`
	Resolved  int           `json:"resolved"`
	Failures  int           `json:"failures"`
	Pages     int           `json:"pages"`
	Complete  bool          `json:"complete"`
	Error     string        `json:"error,omitempty"`
}

// Failed returns true if the pass ended with an error.
func (e Entry) Failed() bool {
	return e.Error != ""
}

// Health summarizes the recorded passes of one account.
type Health struct {
	// FailingStreak counts the failed passes since the last success.
	FailingStreak int
	// LastFailure is the newest failed pass, if any was recorded.
	LastFailure *Entry
	// LastSuccess is the newest successful pass, if any was recorded.
	LastSuccess *Entry
}

// Summarize computes Health from entries ordered newest first.
func Summarize(entries []Entry) Health {
	var h Health
	for i := range entries {
		e := &entries[i]
		if e.Failed() {
			if h.LastSuccess == nil {
				h.FailingStreak++
			}
			if h.LastFailure == nil {
				h.LastFailure = e
			}
			continue
		}
		if h.LastSuccess == nil {
			h.LastSuccess = e
		}
		if h.LastFailure != nil {
			break
		}
	}
	return h
}
