// Package index implements a per-task last-entry table.
// ledger.jsonl stays the durable source of truth; this is a
// rebuildable SQLite projection that names each task's latest entry.
// The ledger confirms a hint by checking the entries after it for a
// newer mention of the task before using it.
package index

import (
	"context"
	"database/sql"
	"fmt"

	"quasiboard/internal/db"
	"quasiboard/internal/ledger"
	"quasiboard/internal/migrate"
)

// Index is a modernc.org/sqlite backed implementation of ledger.Index.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite index database under
// dataDir and applies pending migrations.
func Open(dataDir string) (*Index, error) {
	conn, err := db.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return &Index{db: conn}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Lookup returns the highest known entry id mentioning taskID, if any.
func (idx *Index) Lookup(taskID string) (int, bool) {
	row := idx.db.QueryRowContext(context.Background(),
		`SELECT entry_id FROM task_last_entry WHERE task_id = ?`, taskID)
	var entryID int
	if err := row.Scan(&entryID); err != nil {
		return 0, false
	}
	return entryID, true
}

// Update records e as the new last-known entry for its task. Errors are
// swallowed: the index is an accelerator, never a correctness
// dependency, so a write failure here must not fail the ledger append
// that is already durably committed to ledger.jsonl.
func (idx *Index) Update(e ledger.Entry) {
	_, _ = idx.db.ExecContext(context.Background(), `
		INSERT INTO task_last_entry(task_id, entry_id, entry_type, entry_timestamp, contributor_agent)
		VALUES (?,?,?,?,?)
		ON CONFLICT(task_id) DO UPDATE SET
			entry_id=excluded.entry_id,
			entry_type=excluded.entry_type,
			entry_timestamp=excluded.entry_timestamp,
			contributor_agent=excluded.contributor_agent
		WHERE excluded.entry_id > task_last_entry.entry_id`,
		e.Task, e.ID, string(e.Type), e.Timestamp, e.ContributorAgent)
}

// Rebuild truncates and replays the index from a full, in-order entry
// list. Used by the `quasi-board index rebuild` command.
func (idx *Index) Rebuild(entries []ledger.Entry) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM task_last_entry`); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := tx.Exec(`
			INSERT INTO task_last_entry(task_id, entry_id, entry_type, entry_timestamp, contributor_agent)
			VALUES (?,?,?,?,?)
			ON CONFLICT(task_id) DO UPDATE SET
				entry_id=excluded.entry_id,
				entry_type=excluded.entry_type,
				entry_timestamp=excluded.entry_timestamp,
				contributor_agent=excluded.contributor_agent`,
			e.Task, e.ID, string(e.Type), e.Timestamp, e.ContributorAgent); err != nil {
			return err
		}
	}
	return tx.Commit()
}
