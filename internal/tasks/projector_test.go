package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quasiboard/internal/ledger"
)

type fakeStatusSource struct {
	statuses map[string]ledger.Status
}

func (f fakeStatusSource) EffectiveStatus(taskID string) ledger.Status {
	if s, ok := f.statuses[taskID]; ok {
		return s
	}
	return ledger.Status{Kind: ledger.StatusOpen}
}

func TestRefreshFallsBackOnColdStartWithNoSource(t *testing.T) {
	p := NewProjector("", "")
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh with no source url should not error: %v", err)
	}
	notes := p.Notes(fakeStatusSource{})
	if len(notes) != 3 {
		t.Fatalf("expected the built-in 3-task fallback list, got %d", len(notes))
	}
}

func TestRefreshFallsBackOnUnreachableSource(t *testing.T) {
	p := NewProjector("http://127.0.0.1:1/unreachable", "")
	err := p.Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected an UpstreamError from an unreachable source")
	}
	notes := p.Notes(fakeStatusSource{})
	if len(notes) != 3 {
		t.Fatalf("expected fallback seeding on cold start despite the error, got %d notes", len(notes))
	}
}

func TestRefreshPullsFromSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]sourceTask{
			{ID: 7, Title: "Fix the thing", URL: "https://example.com/issues/7", Labels: []string{"bug"}},
		})
	}))
	defer srv.Close()

	p := NewProjector(srv.URL, "")
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	notes := p.Notes(fakeStatusSource{})
	if len(notes) != 1 {
		t.Fatalf("expected exactly one projected task, got %d", len(notes))
	}
	if notes[0].QuasiTaskID != "QUASI-007" {
		t.Fatalf("expected task id QUASI-007, got %s", notes[0].QuasiTaskID)
	}
}

func TestWarmCacheSurvivesTransientOutage(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode([]sourceTask{
			{ID: 1, Title: "Only task", URL: "https://example.com/issues/1"},
		})
	}))
	defer srv.Close()

	p := NewProjector(srv.URL, "")
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := p.Refresh(context.Background()); err == nil {
		t.Fatalf("expected the second refresh to report the upstream error")
	}
	notes := p.Notes(fakeStatusSource{})
	if len(notes) != 1 || notes[0].QuasiTaskID != "QUASI-001" {
		t.Fatalf("expected the previously fetched task to survive the outage, got %v", notes)
	}
}

func TestNoteProjectionOverlaysClaimedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]sourceTask{
			{ID: 1, Title: "Claimed task", URL: "https://example.com/issues/1"},
		})
	}))
	defer srv.Close()

	p := NewProjector(srv.URL, "")
	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	expires := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	status := fakeStatusSource{statuses: map[string]ledger.Status{
		"QUASI-001": {Kind: ledger.StatusClaimed, ClaimedBy: "claude-sonnet-4-6", ExpiresAt: expires},
	}}
	notes := p.Notes(status)
	if len(notes) != 1 {
		t.Fatalf("expected one note")
	}
	n := notes[0]
	if n.QuasiStatus != "claimed" {
		t.Fatalf("expected claimed status, got %s", n.QuasiStatus)
	}
	if n.ClaimedBy == nil || *n.ClaimedBy != "claude-sonnet-4-6" {
		t.Fatalf("expected claimedBy to be set, got %v", n.ClaimedBy)
	}
	if n.ExpiresAt == nil {
		t.Fatalf("expected expiresAt to be set for a claimed task")
	}
}

func TestNoteProjectionOmitsClaimFieldsWhenOpen(t *testing.T) {
	p := NewProjector("", "")
	_ = p.Refresh(context.Background())
	notes := p.Notes(fakeStatusSource{})
	for _, n := range notes {
		if n.ClaimedBy != nil || n.ExpiresAt != nil {
			t.Fatalf("expected no claim fields on an open task, got %+v", n)
		}
	}
}

func TestByIDMissingTaskReportsNotFound(t *testing.T) {
	p := NewProjector("", "")
	_ = p.Refresh(context.Background())
	if _, ok := p.ByID(fakeStatusSource{}, "QUASI-999"); ok {
		t.Fatalf("expected QUASI-999 to be absent from the projected list")
	}
}

func TestByIDFindsProjectedTask(t *testing.T) {
	p := NewProjector("", "")
	_ = p.Refresh(context.Background())
	note, ok := p.ByID(fakeStatusSource{}, "QUASI-001")
	if !ok {
		t.Fatalf("expected QUASI-001 to be present in the fallback list")
	}
	if note.QuasiTaskID != "QUASI-001" {
		t.Fatalf("unexpected task id %s", note.QuasiTaskID)
	}
}
