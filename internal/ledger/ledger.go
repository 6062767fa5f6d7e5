// Package ledger implements the append-only, hash-chained ledger of
// task claims and completions. Its sync.RWMutex guards every access:
// readers (Entries, VerifyChain, EffectiveStatus) take the read lock;
// the two append operations take the write lock across the
// read-last/compute/write sequence, including the fsync, so the chain
// invariants hold even under a crash between steps.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"quasiboard/internal/canon"
)

// Index is the optional secondary per-task accelerator described in
// internal/index. It is purely an acceleration structure: every lookup
// it returns is verified against the in-memory chain before use, so a
// stale or absent index can never produce an incorrect status.
type Index interface {
	Lookup(taskID string) (entryID int, ok bool)
	Update(e Entry)
}

const genesisTask = "GENESIS"
const genesisAgent = "quasi-board"
const completionSlotBudget = 50

// Ledger is the in-process handle on one instance's hash chain.
type Ledger struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	entries []Entry
	index   Index
	now     func() time.Time
}

// Open loads path (creating it with a genesis entry if absent) and
// returns a ready Ledger. idx may be nil.
func Open(path string, idx Index) (*Ledger, error) {
	l := &Ledger{path: path, index: idx, now: time.Now}
	if err := l.load(); err != nil {
		return nil, err
	}
	if len(l.entries) == 0 {
		if err := l.appendGenesis(); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &StorageError{Err: err}
	}
	l.file = f
	return l, nil
}

// Close releases the underlying file handle.
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Ledger) load() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &StorageError{Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return &StorageError{Err: fmt.Errorf("parsing %s: %w", l.path, err)}
		}
		l.entries = append(l.entries, e)
		if l.index != nil {
			l.index.Update(e)
		}
	}
	if err := scanner.Err(); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}

func (l *Ledger) appendGenesis() error {
	entry := Entry{
		ID:               1,
		Type:             TypeGenesis,
		ContributorAgent: genesisAgent,
		Task:             genesisTask,
		Timestamp:        FormatTimestamp(l.now()),
		PrevHash:         canon.ZeroHash,
	}
	hash, err := entry.computeHash()
	if err != nil {
		return &StorageError{Err: err}
	}
	entry.EntryHash = hash
	if err := l.writeThrough(entry); err != nil {
		return err
	}
	l.entries = append(l.entries, entry)
	return nil
}

// writeThrough durably appends entry to ledger.jsonl. It never mutates
// in-memory state itself; callers append to l.entries only after this
// returns nil, so a StorageError never leaves partial state behind.
func (l *Ledger) writeThrough(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return &StorageError{Err: err}
	}
	line = append(line, '\n')

	f := l.file
	if f == nil {
		// Only true during genesis creation in Open, before the
		// long-lived handle exists yet.
		tmp, err := os.CreateTemp(filepath.Dir(l.path), "ledger-init-"+uuid.NewString())
		if err != nil {
			return &StorageError{Err: err}
		}
		if _, err := tmp.Write(line); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return &StorageError{Err: err}
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return &StorageError{Err: err}
		}
		tmp.Close()
		if err := os.Rename(tmp.Name(), l.path); err != nil {
			return &StorageError{Err: err}
		}
		return nil
	}

	if _, err := f.Write(line); err != nil {
		return &StorageError{Err: err}
	}
	if err := f.Sync(); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}

// statusAt is effectiveStatusAt consulting the optional secondary
// index first: if the index names a candidate last-entry for taskID,
// the entries after it are checked for a newer mention of taskID and,
// if there is none, the candidate alone decides the status. Any
// mismatch (stale or absent index, wrong task) falls back to the full
// scan, so an incorrect or missing index can never produce a wrong
// status, only a slower lookup.
func (l *Ledger) statusAt(taskID string, reference time.Time) (Status, *Entry) {
	if l.index != nil {
		if hintID, ok := l.index.Lookup(taskID); ok {
			if pos := hintID - 1; pos >= 0 && pos < len(l.entries) && l.entries[pos].Task == taskID {
				hint := l.entries[pos]
				for i := pos + 1; i < len(l.entries); i++ {
					if l.entries[i].Task == taskID {
						// Index is stale; a newer entry exists. Fall back.
						return effectiveStatusAt(l.entries, taskID, reference)
					}
				}
				return statusForHit(hint, reference)
			}
		}
	}
	return effectiveStatusAt(l.entries, taskID, reference)
}

func (l *Ledger) lastHash() string {
	if len(l.entries) == 0 {
		return canon.ZeroHash
	}
	return l.entries[len(l.entries)-1].EntryHash
}

// AppendClaim appends a claim entry for taskID by agent at ts, enforcing
// the one-active-claim-per-task and already-done invariants.
func (l *Ledger) AppendClaim(agent, taskID string, ts time.Time) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	status, hit := l.statusAt(taskID, ts)
	switch status.Kind {
	case StatusDone:
		return Entry{}, &AlreadyDoneError{TaskID: taskID}
	case StatusClaimed:
		if status.ClaimedBy == agent {
			// Same-agent re-claim of a still-active claim is idempotent.
			return *hit, nil
		}
		return Entry{}, &ConflictError{TaskID: taskID, HeldBy: status.ClaimedBy}
	}

	entry := Entry{
		ID:               len(l.entries) + 1,
		Type:             TypeClaim,
		ContributorAgent: agent,
		Task:             taskID,
		Timestamp:        FormatTimestamp(ts),
		PrevHash:         l.lastHash(),
	}
	return l.commit(entry)
}

// AppendCompletion appends a completion entry, idempotent on
// (taskID, commitHash). metadata carries the supplemental fields the
// webhook pipeline can supply (contributor_github, pr_title,
// verification); it is optional and never required for hashing.
func (l *Ledger) AppendCompletion(agent, taskID, commitHash, prURL string, metadata map[string]string, ts time.Time) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Type == TypeCompletion && e.Task == taskID && e.CommitHash == commitHash {
			return e, nil
		}
	}

	entry := Entry{
		ID:               len(l.entries) + 1,
		Type:             TypeCompletion,
		ContributorAgent: agent,
		Task:             taskID,
		CommitHash:       commitHash,
		PRUrl:            prURL,
		Metadata:         metadata,
		Timestamp:        FormatTimestamp(ts),
		PrevHash:         l.lastHash(),
	}
	return l.commit(entry)
}

// commit finalizes (hashes), durably writes, and publishes entry into
// the in-memory tail. Caller must hold l.mu for writing.
func (l *Ledger) commit(entry Entry) (Entry, error) {
	hash, err := entry.computeHash()
	if err != nil {
		return Entry{}, &StorageError{Err: err}
	}
	entry.EntryHash = hash

	if err := l.writeThrough(entry); err != nil {
		return Entry{}, err
	}
	l.entries = append(l.entries, entry)
	if l.index != nil {
		l.index.Update(entry)
	}
	return entry, nil
}

// EffectiveStatus returns the current derived status of taskID, relative
// to wall-clock now.
func (l *Ledger) EffectiveStatus(taskID string) Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	status, _ := l.statusAt(taskID, l.now())
	return status
}

// Entries returns up to limit entries starting at offset (0-based,
// in append order).
func (l *Ledger) Entries(offset, limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if offset < 0 || offset >= len(l.entries) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(l.entries) {
		end = len(l.entries)
	}
	out := make([]Entry, end-offset)
	copy(out, l.entries[offset:end])
	return out
}

// SlotsRemaining returns max(0, 50-count(type=completion)). It floors at
// zero and is purely informational past that point.
func (l *Ledger) SlotsRemaining() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	count := 0
	for _, e := range l.entries {
		if e.Type == TypeCompletion {
			count++
		}
	}
	remaining := completionSlotBudget - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// VerifyResult is the outcome of a chain verification pass.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	BrokenAt *int   `json:"broken_at"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyChain walks the entire chain once (O(n)) checking every
// invariant: id contiguity, prev_hash linkage, entry_hash correctness,
// and genesis shape.
func (l *Ledger) VerifyChain() VerifyResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, e := range l.entries {
		expectedID := i + 1
		if e.ID != expectedID {
			id := e.ID
			return VerifyResult{Valid: false, BrokenAt: &id, Reason: "id_gap"}
		}
		if i == 0 {
			if e.Type != TypeGenesis || e.PrevHash != canon.ZeroHash {
				id := e.ID
				return VerifyResult{Valid: false, BrokenAt: &id, Reason: "genesis_mismatch"}
			}
		} else if e.PrevHash != l.entries[i-1].EntryHash {
			id := e.ID
			return VerifyResult{Valid: false, BrokenAt: &id, Reason: "prev_hash_mismatch"}
		}
		recomputed, err := e.computeHash()
		if err != nil || recomputed != e.EntryHash {
			id := e.ID
			return VerifyResult{Valid: false, BrokenAt: &id, Reason: "hash_mismatch"}
		}
	}
	return VerifyResult{Valid: true}
}
