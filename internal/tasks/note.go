package tasks

import "quasiboard/internal/ledger"

// StatusSource is the ledger's read surface the projector needs: the
// effective status of one task, derived at render time.
type StatusSource interface {
	EffectiveStatus(taskID string) ledger.Status
}

// Note is one outbox item: a task projected to ActivityPub with its
// ledger-derived claim state overlaid.
type Note struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	Published   string  `json:"published"`
	QuasiTaskID string  `json:"quasi:taskId"`
	QuasiStatus string  `json:"quasi:status"`
	ClaimedBy   *string `json:"quasi:claimedBy,omitempty"`
	ExpiresAt   *string `json:"quasi:expiresAt,omitempty"`
}

func noteFromRecord(r Record, status ledger.Status) Note {
	n := Note{
		ID:          r.URL,
		Type:        "Note",
		Name:        r.Title,
		URL:         r.URL,
		Content:     r.Title,
		Published:   r.FetchedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
		QuasiTaskID: r.ID,
		QuasiStatus: string(status.Kind),
	}
	if status.Kind == ledger.StatusClaimed {
		by := status.ClaimedBy
		exp := status.ExpiresAt.UTC().Format("2006-01-02T15:04:05.000000Z")
		n.ClaimedBy = &by
		n.ExpiresAt = &exp
	}
	return n
}
