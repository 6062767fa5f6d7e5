package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quasiboard/internal/canon"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "ledger.jsonl"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return ts
}

func TestGenesisEntry(t *testing.T) {
	l := newTestLedger(t)
	entries := l.Entries(0, 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 genesis entry, got %d", len(entries))
	}
	g := entries[0]
	if g.ID != 1 || g.Type != TypeGenesis || g.Task != "GENESIS" || g.PrevHash != canon.ZeroHash {
		t.Fatalf("unexpected genesis entry: %+v", g)
	}
}

// S1 — first claim.
func TestAppendClaimFirstClaim(t *testing.T) {
	l := newTestLedger(t)
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	e, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", ts)
	if err != nil {
		t.Fatalf("append claim: %v", err)
	}
	if e.ID != 2 {
		t.Fatalf("expected id 2, got %d", e.ID)
	}
	result := l.VerifyChain()
	if !result.Valid {
		t.Fatalf("expected valid chain, got %+v", result)
	}
}

// S2 — double claim conflict.
func TestAppendClaimConflict(t *testing.T) {
	l := newTestLedger(t)
	t1 := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", t1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	t2 := mustParse(t, "2026-02-23T11:00:00Z")
	_, err := l.AppendClaim("gpt-4o", "QUASI-001", t2)
	if _, ok := err.(*ConflictError); !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(l.Entries(0, 0)) != 2 {
		t.Fatalf("ledger length should be unchanged after conflict")
	}
}

// S3 — expired claim re-claimable by a different agent.
func TestAppendClaimExpiredReclaimable(t *testing.T) {
	l := newTestLedger(t)
	t1 := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", t1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	t2 := mustParse(t, "2026-02-24T11:00:00Z") // 25h later
	e, err := l.AppendClaim("gpt-4o", "QUASI-001", t2)
	if err != nil {
		t.Fatalf("expected expired claim to be reclaimable: %v", err)
	}
	if e.ID != 3 {
		t.Fatalf("expected entry id 3, got %d", e.ID)
	}
	// EffectiveStatus reads the ledger clock; pin it to the scenario time
	// so the new claim is evaluated as still active.
	l.now = func() time.Time { return t2 }
	status := l.EffectiveStatus("QUASI-001")
	if status.Kind != StatusClaimed || status.ClaimedBy != "gpt-4o" {
		t.Fatalf("unexpected status after reclaim: %+v", status)
	}
}

// Property 7 — TTL boundary, accepted at exactly 24h.
func TestClaimBoundaryAtExactly24Hours(t *testing.T) {
	l := newTestLedger(t)
	t1 := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", t1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	boundary := t1.Add(24 * time.Hour)
	if _, err := l.AppendClaim("gpt-4o", "QUASI-001", boundary); err != nil {
		t.Fatalf("expected claim at exactly 24h to be accepted: %v", err)
	}
}

func TestClaimJustUnderBoundaryRejected(t *testing.T) {
	l := newTestLedger(t)
	t1 := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", t1); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	almost := t1.Add(24*time.Hour - time.Second)
	_, err := l.AppendClaim("gpt-4o", "QUASI-001", almost)
	if _, ok := err.(*ConflictError); !ok {
		t.Fatalf("expected conflict just under 24h, got %v", err)
	}
}

func TestSameAgentReclaimIsIdempotent(t *testing.T) {
	l := newTestLedger(t)
	t1 := mustParse(t, "2026-02-23T10:00:00Z")
	first, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", t1)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	t2 := mustParse(t, "2026-02-23T10:30:00Z")
	second, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", t2)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("same-agent re-claim should not append: first=%d second=%d", first.ID, second.ID)
	}
	if len(l.Entries(0, 0)) != 2 {
		t.Fatalf("expected no new entry for idempotent re-claim")
	}
}

// S4 — completion idempotence.
func TestCompletionIdempotence(t *testing.T) {
	l := newTestLedger(t)
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	first, err := l.AppendCompletion("claude-sonnet-4-6", "QUASI-001", "abc123", "https://example.com/pull/7", nil, ts)
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	second, err := l.AppendCompletion("claude-sonnet-4-6", "QUASI-001", "abc123", "https://example.com/pull/7", nil, ts)
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if first.ID != second.ID || first.EntryHash != second.EntryHash {
		t.Fatalf("idempotent completion returned different entries: %+v vs %+v", first, second)
	}
	if len(l.Entries(0, 0)) != 2 {
		t.Fatalf("ledger length should be unchanged after idempotent completion")
	}
}

func TestCompletionWithoutPriorClaim(t *testing.T) {
	l := newTestLedger(t)
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	_, err := l.AppendCompletion("claude-sonnet-4-6", "QUASI-002", "def456", "https://example.com/pull/9", nil, ts)
	if err != nil {
		t.Fatalf("completion without prior claim should succeed: %v", err)
	}
	status := l.EffectiveStatus("QUASI-002")
	if status.Kind != StatusDone {
		t.Fatalf("expected done status, got %+v", status)
	}
}

func TestClaimAfterCompletionIsAlreadyDone(t *testing.T) {
	l := newTestLedger(t)
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendCompletion("claude-sonnet-4-6", "QUASI-001", "abc123", "u", nil, ts); err != nil {
		t.Fatalf("completion: %v", err)
	}
	_, err := l.AppendClaim("gpt-4o", "QUASI-001", ts.Add(time.Hour))
	if _, ok := err.(*AlreadyDoneError); !ok {
		t.Fatalf("expected AlreadyDoneError, got %v", err)
	}
}

func TestSlotsRemainingCountsCompletionsOnly(t *testing.T) {
	l := newTestLedger(t)
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("agent-a", "QUASI-001", ts); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if got, want := l.SlotsRemaining(), 50; got != want {
		t.Fatalf("claim should not consume a slot: got %d want %d", got, want)
	}
	if _, err := l.AppendCompletion("agent-a", "QUASI-001", "abc", "u", nil, ts.Add(time.Minute)); err != nil {
		t.Fatalf("completion: %v", err)
	}
	if got, want := l.SlotsRemaining(), 49; got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

// S6 — chain tamper detection.
func TestVerifyChainDetectsTamper(t *testing.T) {
	l := newTestLedger(t)
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", ts); err != nil {
		t.Fatalf("claim: %v", err)
	}
	l.mu.Lock()
	l.entries[1].ContributorAgent = "tampered-agent"
	l.mu.Unlock()

	result := l.VerifyChain()
	if result.Valid {
		t.Fatalf("expected tamper to be detected")
	}
	if result.Reason != "hash_mismatch" || result.BrokenAt == nil || *result.BrokenAt != 2 {
		t.Fatalf("unexpected verify result: %+v", result)
	}
}

func TestVerifyChainIsValidAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ts := mustParse(t, "2026-02-23T10:00:00Z")
	if _, err := l.AppendClaim("claude-sonnet-4-6", "QUASI-001", ts); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := l.AppendCompletion("claude-sonnet-4-6", "QUASI-001", "abc123", "u", nil, ts.Add(time.Hour)); err != nil {
		t.Fatalf("completion: %v", err)
	}
	l.Close()

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if len(reopened.Entries(0, 0)) != 3 {
		t.Fatalf("expected 3 entries after reopen")
	}
	if result := reopened.VerifyChain(); !result.Valid {
		t.Fatalf("expected valid chain after reopen: %+v", result)
	}
}

func TestStorageErrorLeavesLedgerUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")
	l, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()
	before := len(l.Entries(0, 0))

	// Close the ledger's file handle and remove the file, forcing
	// writeThrough's O_APPEND write to fail against a closed fd.
	l.file.Close()
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}

	ts := mustParse(t, "2026-02-23T10:00:00Z")
	_, err = l.AppendClaim("agent", "QUASI-009", ts)
	if err == nil {
		t.Fatalf("expected storage error after closing file handle")
	}
	if _, ok := err.(*StorageError); !ok {
		t.Fatalf("expected StorageError, got %T: %v", err, err)
	}
	if len(l.Entries(0, 0)) != before {
		t.Fatalf("in-memory entries mutated despite storage error")
	}
}
