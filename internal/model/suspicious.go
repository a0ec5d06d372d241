package model

import "time"

// SuspiciousEvent is one flagged event in an IP's bounded history.
type SuspiciousEvent struct {
	EventType string    `json:"eventType"`
	AccountID string    `json:"accountId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SuspiciousIPRecord tracks abuse signals for a source IP. Records are
// never hard-deleted; a blocked IP stays blocked until an explicit unblock.
type SuspiciousIPRecord struct {
	IP            string            `json:"ip"`
	Attempts      int               `json:"attempts"`
	LastAttemptAt time.Time         `json:"lastAttemptAt"`
	Blocked       bool              `json:"blocked"`
	BlockedAt     *time.Time        `json:"blockedAt,omitempty"`
	// History is a bounded ring of the most recent flagged events,
	// oldest first.
	History []SuspiciousEvent `json:"history"`
}

// RecentCount returns the number of flagged events newer than cutoff.
func (r *SuspiciousIPRecord) RecentCount(cutoff time.Time) int {
	n := 0
	for _, ev := range r.History {
		if ev.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}
