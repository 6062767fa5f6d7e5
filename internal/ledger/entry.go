package ledger

import (
	"time"

	"quasiboard/internal/canon"
)

// EntryType enumerates the three kinds of ledger entries.
type EntryType string

const (
	TypeGenesis    EntryType = "genesis"
	TypeClaim      EntryType = "claim"
	TypeCompletion EntryType = "completion"
)

// Entry is one immutable record in the hash-chained ledger. Field order
// here is presentation only; chain hashing depends on canon's sorted-key
// serialization, not struct field order.
type Entry struct {
	ID               int               `json:"id"`
	Type             EntryType         `json:"type"`
	ContributorAgent string            `json:"contributor_agent"`
	Task             string            `json:"task"`
	CommitHash       string            `json:"commit_hash,omitempty"`
	PRUrl            string            `json:"pr_url,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Timestamp        string            `json:"timestamp"`
	PrevHash         string            `json:"prev_hash"`
	EntryHash        string            `json:"entry_hash"`
}

// FormatTimestamp renders t in the canonical RFC 3339 microsecond form
// the chain hashing depends on. t is always normalized to UTC first, so
// the trailing "Z" below is a literal, not a Go reference-time token.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ParseTimestamp accepts any RFC 3339 variant (the wire format tolerates
// both integer-second and fractional-second inputs). The result keeps
// the input's offset; FormatTimestamp converts it to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// canonicalFields returns the entry's fields minus entry_hash, the
// exact byte-stable input to the chain hash function.
func (e Entry) canonicalFields() map[string]any {
	fields := map[string]any{
		"id":                e.ID,
		"type":              string(e.Type),
		"contributor_agent": e.ContributorAgent,
		"task":              e.Task,
		"timestamp":         e.Timestamp,
		"prev_hash":         e.PrevHash,
	}
	if e.CommitHash != "" {
		fields["commit_hash"] = e.CommitHash
	}
	if e.PRUrl != "" {
		fields["pr_url"] = e.PRUrl
	}
	if len(e.Metadata) > 0 {
		fields["metadata"] = e.Metadata
	}
	return fields
}

// computeHash returns the entry_hash for e given its other fields are
// already final (including prev_hash).
func (e Entry) computeHash() (string, error) {
	b, err := canon.Canonicalize(e.canonicalFields())
	if err != nil {
		return "", err
	}
	return canon.SHA256Hex(b), nil
}
