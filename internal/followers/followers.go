// Package followers maintains the in-memory, write-through follower
// set a federation server needs to fan out publications: the
// recipient list, persisted to followers.json.
package followers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one follower: the remote actor, its inbox, and the public
// key used to verify activities signed by it.
type Record struct {
	ActorID      string    `json:"actor_id"`
	InboxURL     string    `json:"inbox_url"`
	PublicKeyPEM string    `json:"public_key_pem"`
	AddedAt      time.Time `json:"added_at"`
}

// Store is the follower set: an in-memory map guarded by a
// reader/writer lock, written through to disk on every mutation.
type Store struct {
	mu   sync.RWMutex
	path string
	byID map[string]Record
}

// Open loads path if present (an object map actor_id -> record) and
// returns a ready Store; a missing file starts with an empty set.
func Open(path string) (*Store, error) {
	s := &Store{path: path, byID: make(map[string]Record)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.byID); err != nil {
		return nil, err
	}
	return s, nil
}

// Add records or refreshes a follower and writes the set through to
// disk. Re-adding an existing actor_id replaces its record (a Follow
// retried by the same actor simply updates inbox/key).
func (s *Store) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ActorID] = r
	return s.persist()
}

// Remove drops a follower (on Undo of a prior Follow) and writes the
// set through to disk. Removing an absent actor is a no-op.
func (s *Store) Remove(actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[actorID]; !ok {
		return nil
	}
	delete(s.byID, actorID)
	return s.persist()
}

// Get returns one follower by actor id.
func (s *Store) Get(actorID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[actorID]
	return r, ok
}

// All returns a snapshot of every follower, order unspecified.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out
}

// persist writes the current set through to disk via rename-over-temp.
// Caller must hold s.mu for writing.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.byID, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "followers-"+uuid.NewString())
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
