package ledger

import "time"

// ClaimTTL is the design-constant window after which an unredeemed
// claim is treated as expired for status queries.
const ClaimTTL = 24 * time.Hour

// StatusKind enumerates a task's derived status.
type StatusKind string

const (
	StatusOpen    StatusKind = "open"
	StatusClaimed StatusKind = "claimed"
	StatusDone    StatusKind = "done"
)

// Status is the derived, not-stored, effective state of a task.
type Status struct {
	Kind      StatusKind
	ClaimedBy string
	ExpiresAt time.Time
}

// effectiveStatusAt scans entries newest-to-oldest for the first one
// mentioning taskID and derives its status relative to reference. It
// also returns that hit entry (nil if none, meaning "open" by absence).
func effectiveStatusAt(entries []Entry, taskID string, reference time.Time) (Status, *Entry) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Task != taskID {
			continue
		}
		switch e.Type {
		case TypeCompletion:
			return Status{Kind: StatusDone}, &entries[i]
		case TypeClaim:
			ts, err := ParseTimestamp(e.Timestamp)
			if err != nil {
				return Status{Kind: StatusOpen}, &entries[i]
			}
			expires := ts.Add(ClaimTTL)
			if reference.Before(expires) {
				return Status{Kind: StatusClaimed, ClaimedBy: e.ContributorAgent, ExpiresAt: expires}, &entries[i]
			}
			return Status{Kind: StatusOpen}, &entries[i]
		}
	}
	return Status{Kind: StatusOpen}, nil
}

// statusForHit derives a Status from a single known last-entry for a
// task, used by the index-accelerated lookup path.
func statusForHit(e Entry, reference time.Time) (Status, *Entry) {
	switch e.Type {
	case TypeCompletion:
		return Status{Kind: StatusDone}, &e
	case TypeClaim:
		ts, err := ParseTimestamp(e.Timestamp)
		if err != nil {
			return Status{Kind: StatusOpen}, &e
		}
		expires := ts.Add(ClaimTTL)
		if reference.Before(expires) {
			return Status{Kind: StatusClaimed, ClaimedBy: e.ContributorAgent, ExpiresAt: expires}, &e
		}
		return Status{Kind: StatusOpen}, &e
	default:
		return Status{Kind: StatusOpen}, &e
	}
}
