// Package tasks implements periodic refresh of the external task list
// and its projection to ActivityPub Note objects overlaid with
// ledger-derived claim state.
package tasks

import (
	"fmt"
	"time"
)

// Record is the projector's cache entry for one external task, opaque
// outside this package.
type Record struct {
	ID        string
	Title     string
	URL       string
	Labels    []string
	FetchedAt time.Time
}

// sourceTask is the wire shape of the opaque upstream feed: a list of
// {id, title, url, labels} records.
type sourceTask struct {
	ID     int      `json:"id"`
	Title  string   `json:"title"`
	URL    string   `json:"url"`
	Labels []string `json:"labels"`
}

// taskID derives the stable task_id from an upstream issue number.
func taskID(issueNumber int) string {
	return fmt.Sprintf("QUASI-%03d", issueNumber)
}

func recordFromSource(t sourceTask, fetchedAt time.Time) Record {
	return Record{
		ID:        taskID(t.ID),
		Title:     t.Title,
		URL:       t.URL,
		Labels:    t.Labels,
		FetchedAt: fetchedAt,
	}
}

// fallbackRecords is the built-in three-task genesis list used when
// the external task source is unreachable at startup. A zero timestamp
// here is overwritten with the actual startup time by the projector.
func fallbackRecords() []Record {
	return []Record{
		{ID: "QUASI-001", Title: "Wire up the canonical JSON hasher", URL: "https://example.com/issues/1", Labels: []string{"good-first-issue"}},
		{ID: "QUASI-002", Title: "Implement HTTP Message Signature verification", URL: "https://example.com/issues/2", Labels: []string{"core"}},
		{ID: "QUASI-003", Title: "Add the per-follower delivery retry queue", URL: "https://example.com/issues/3", Labels: []string{"core", "federation"}},
	}
}
