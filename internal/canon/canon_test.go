package canon

import "testing"

func TestCanonicalizeSortsKeys(t *testing.T) {
	b, err := Canonicalize(map[string]any{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got, want := string(b), `{"a":2,"b":1}`; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeOmitsNulls(t *testing.T) {
	b, err := Canonicalize(map[string]any{"a": 1, "b": nil})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got, want := string(b), `{"a":1}`; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeIntegersHaveNoFraction(t *testing.T) {
	b, err := Canonicalize(map[string]any{"n": 5})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if got, want := string(b), `{"n":5}`; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCanonicalizeDeterministic(t *testing.T) {
	entry := map[string]any{
		"id":                3,
		"type":              "claim",
		"contributor_agent": "claude-sonnet-4-6",
		"task":              "QUASI-001",
		"timestamp":         "2026-02-23T10:00:00.000000Z",
		"prev_hash":         ZeroHash,
	}
	a, err := Canonicalize(entry)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	b, err := Canonicalize(entry)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("canonicalization is not stable: %q != %q", a, b)
	}
}

func TestCanonicalizeDoesNotEscapeHTMLCharacters(t *testing.T) {
	b, err := Canonicalize(map[string]any{"pr_url": "https://example.com/pull/7?diff=split&w=1<x>"})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"pr_url":"https://example.com/pull/7?diff=split&w=1<x>"}`
	if got := string(b); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSHA256HexLength(t *testing.T) {
	h := SHA256Hex([]byte("hello"))
	if len(h) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(h))
	}
}

func TestZeroHash(t *testing.T) {
	if len(ZeroHash) != 64 {
		t.Fatalf("expected 64 char zero hash, got %d", len(ZeroHash))
	}
	for _, c := range ZeroHash {
		if c != '0' {
			t.Fatalf("ZeroHash contains non-zero char: %q", ZeroHash)
		}
	}
}
