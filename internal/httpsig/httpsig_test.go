package httpsig

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"
	"time"

	"quasiboard/internal/keys"
)

type staticFetcher struct {
	pem string
	err error
}

func (f staticFetcher) FetchPublicKeyPEM(ctx context.Context, keyID string) (string, error) {
	return f.pem, f.err
}

func newPair(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pem, err := keys.PublicKeyPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("encode public key: %v", err)
	}
	return priv, pem
}

func signAndVerify(t *testing.T, fixedNow time.Time) (*RealEngine, SignedHeaders, VerifyInput) {
	t.Helper()
	priv, pub := newPair(t)
	clock := func() time.Time { return fixedNow }
	signer := &RealEngine{PrivateKey: priv, Now: clock}
	body := []byte(`{"type":"Announce"}`)
	signed, err := signer.Sign(SignInput{Method: "POST", Path: "/quasi-board/inbox", Host: "gawain.example.com", Body: body, KeyID: "https://example.com/quasi-board#main-key"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	headers := http.Header{}
	headers.Set("Date", signed.Date)
	headers.Set("Digest", signed.Digest)
	headers.Set("Signature", signed.Signature)
	headers.Set("Host", "gawain.example.com")

	verifier := &RealEngine{Cache: NewKeyCache(), Fetcher: staticFetcher{pem: pub}, Now: clock}
	in := VerifyInput{Method: "POST", Path: "/quasi-board/inbox", Headers: headers, Body: body}
	return verifier, signed, in
}

func TestSignVerifyRoundTrip(t *testing.T) {
	verifier, _, in := signAndVerify(t, time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC))
	if err := verifier.Verify(context.Background(), in); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyFailsOnTamperedHeader(t *testing.T) {
	verifier, _, in := signAndVerify(t, time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC))
	in.Headers.Set("Host", "attacker.example.com")
	if err := verifier.Verify(context.Background(), in); err == nil {
		t.Fatalf("expected verification failure after tampering with a covered header")
	}
}

func TestVerifyFailsOnTamperedBody(t *testing.T) {
	verifier, _, in := signAndVerify(t, time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC))
	in.Body = []byte(`{"type":"Announce","extra":"field"}`)
	if err := verifier.Verify(context.Background(), in); err == nil {
		t.Fatalf("expected verification failure after body tamper (digest mismatch)")
	}
}

func TestVerifyRejectsStaleDate(t *testing.T) {
	signTime := time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC)
	verifier, _, in := signAndVerify(t, signTime)
	verifier.Now = func() time.Time { return signTime.Add(10 * time.Minute) }
	if err := verifier.Verify(context.Background(), in); err == nil {
		t.Fatalf("expected verification failure due to date skew")
	}
}

func TestVerifyEvictsCacheOnFailure(t *testing.T) {
	_, pub := newPair(t)
	now := time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC)
	cache := NewKeyCache()
	cache.Put("https://example.com/quasi-board#main-key", pub)

	verifier := &RealEngine{Cache: cache, Fetcher: staticFetcher{err: nil, pem: pub}, Now: func() time.Time { return now }}
	headers := http.Header{}
	headers.Set("Date", now.Format(http.TimeFormat))
	headers.Set("Digest", digestOf([]byte("body")))
	headers.Set("Host", "gawain.example.com")
	headers.Set("Signature", signatureHeader("https://example.com/quasi-board#main-key", "bm90LWEtc2lnbmF0dXJl"))

	err := verifier.Verify(context.Background(), VerifyInput{Method: "POST", Path: "/x", Headers: headers, Body: []byte("body")})
	if err == nil {
		t.Fatalf("expected invalid signature to fail verification")
	}
	if _, ok := cache.Get("https://example.com/quasi-board#main-key"); ok {
		t.Fatalf("expected cache entry to be evicted on verification failure")
	}
}

func TestStubEngineNeverVerifies(t *testing.T) {
	stub := &StubEngine{}
	if stub.Capability() != CapabilityStub {
		t.Fatalf("expected stub capability")
	}
	signed, err := stub.Sign(SignInput{Method: "POST", Path: "/x", Host: "h", Body: []byte("b"), KeyID: "k"})
	if err != nil {
		t.Fatalf("stub sign should not error: %v", err)
	}
	if signed.Signature == "" {
		t.Fatalf("stub signature header should still be syntactically present")
	}
	headers := http.Header{}
	headers.Set("Date", signed.Date)
	headers.Set("Digest", signed.Digest)
	headers.Set("Signature", signed.Signature)
	if err := stub.Verify(context.Background(), VerifyInput{Body: []byte("b"), Headers: headers}); err == nil {
		t.Fatalf("stub engine must refuse all signatures, including its own")
	}
}

func TestMissingSignatureHeaderRejected(t *testing.T) {
	verifier := &RealEngine{Cache: NewKeyCache(), Now: time.Now}
	err := verifier.Verify(context.Background(), VerifyInput{Headers: http.Header{}, Body: []byte("b")})
	if err == nil {
		t.Fatalf("expected error for missing Signature header")
	}
}
