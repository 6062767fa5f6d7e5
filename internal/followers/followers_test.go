package followers

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAddAndGet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "followers.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rec := Record{ActorID: "https://remote.example/actors/alice", InboxURL: "https://remote.example/inbox", PublicKeyPEM: "pem", AddedAt: time.Now().UTC()}
	if err := s.Add(rec); err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, ok := s.Get(rec.ActorID)
	if !ok {
		t.Fatalf("expected follower to be present")
	}
	if got.InboxURL != rec.InboxURL {
		t.Fatalf("inbox url mismatch: %s", got.InboxURL)
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "followers.json"))
	rec := Record{ActorID: "a", InboxURL: "b", PublicKeyPEM: "c"}
	_ = s.Add(rec)
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected follower to be gone after Remove")
	}
}

func TestRemoveAbsentIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "followers.json"))
	if err := s.Remove("ghost"); err != nil {
		t.Fatalf("Remove of an absent actor should not error: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "followers.json")
	s1, _ := Open(path)
	_ = s1.Add(Record{ActorID: "a", InboxURL: "b", PublicKeyPEM: "c"})

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := s2.Get("a"); !ok {
		t.Fatalf("expected follower added in the first session to survive reopen")
	}
}

func TestAllReturnsEverything(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(filepath.Join(dir, "followers.json"))
	_ = s.Add(Record{ActorID: "a"})
	_ = s.Add(Record{ActorID: "b"})
	all := s.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 followers, got %d", len(all))
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Open of a missing file should succeed with an empty set: %v", err)
	}
	if len(s.All()) != 0 {
		t.Fatalf("expected empty follower set")
	}
}
