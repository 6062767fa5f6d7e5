// Package httpsig implements HTTP Message Signature construction and
// verification (an RFC 9421-style subset), including the signer
// public-key fetch and cache. The signed-string construction and
// header set are fixed exactly so that any two independent
// implementations agree byte-for-byte with each other.
package httpsig

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quasiboard/internal/keys"
)

// Capability reports whether an Engine can produce verifiable
// signatures. Stub signatures must never be silently accepted as
// verified.
type Capability string

const (
	CapabilityReal Capability = "real"
	CapabilityStub Capability = "stub"
)

const coveredHeaders = "(request-target) host date digest"

// maxDateSkew is the maximum tolerated difference between a request's
// Date header and the verifier's clock.
const maxDateSkew = 5 * time.Minute

// SignInput describes one outbound request to sign.
type SignInput struct {
	Method string
	Path   string
	Host   string
	Body   []byte
	KeyID  string
}

// SignedHeaders are the headers Sign produces; callers copy them onto
// the outgoing request.
type SignedHeaders struct {
	Date      string
	Digest    string
	Signature string
}

// VerifyInput describes one inbound request to verify.
type VerifyInput struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// KeyFetcher resolves a keyId URL to the signer's PEM-encoded public key.
type KeyFetcher interface {
	FetchPublicKeyPEM(ctx context.Context, keyID string) (string, error)
}

// Engine is the sign/verify contract, implemented by RealEngine (with
// RSA key material) and StubEngine (without). The serve command always
// constructs a RealEngine, generating a keypair on first run.
type Engine interface {
	Sign(in SignInput) (SignedHeaders, error)
	Verify(ctx context.Context, in VerifyInput) error
	Capability() Capability
}

func digestOf(body []byte) string {
	sum := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
}

func buildSignedString(method, path, host, date, digest string) string {
	return strings.Join([]string{
		"(request-target): " + strings.ToLower(method) + " " + path,
		"host: " + host,
		"date: " + date,
		"digest: " + digest,
	}, "\n")
}

// RealEngine signs with an RSA private key and verifies against keys
// fetched (and cached) over HTTP.
type RealEngine struct {
	PrivateKey *rsa.PrivateKey
	Cache      *KeyCache
	Fetcher    KeyFetcher
	Now        func() time.Time
}

func (e *RealEngine) Capability() Capability { return CapabilityReal }

func (e *RealEngine) Sign(in SignInput) (SignedHeaders, error) {
	date := e.now().UTC().Format(http.TimeFormat)
	digest := digestOf(in.Body)
	signedString := buildSignedString(in.Method, in.Path, in.Host, date, digest)

	hashed := sha256.Sum256([]byte(signedString))
	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, e.PrivateKey, crypto.SHA256, hashed[:])
	if err != nil {
		return SignedHeaders{}, fmt.Errorf("httpsig: sign: %w", err)
	}
	signature := base64.StdEncoding.EncodeToString(sigBytes)

	return SignedHeaders{
		Date:      date,
		Digest:    digest,
		Signature: signatureHeader(in.KeyID, signature),
	}, nil
}

func (e *RealEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func signatureHeader(keyID, signature string) string {
	return fmt.Sprintf(`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`,
		keyID, coveredHeaders, signature)
}

func (e *RealEngine) Verify(ctx context.Context, in VerifyInput) error {
	params, err := parseSignatureHeader(in.Headers.Get("Signature"))
	if err != nil {
		return &AuthError{Reason: err.Error()}
	}

	covered := strings.Fields(params["headers"])
	for _, required := range []string{"(request-target)", "host", "date", "digest"} {
		if !containsString(covered, required) {
			return &AuthError{Reason: "missing covered header " + required}
		}
	}

	date := in.Headers.Get("Date")
	if date == "" {
		return &AuthError{Reason: "missing Date header"}
	}
	parsedDate, err := time.Parse(http.TimeFormat, date)
	if err != nil {
		return &AuthError{Reason: "unparseable Date header"}
	}
	if skew := e.now().Sub(parsedDate); skew > maxDateSkew || skew < -maxDateSkew {
		return &AuthError{Reason: "date skew exceeds 5 minutes"}
	}

	digestHeader := in.Headers.Get("Digest")
	if digestHeader == "" {
		return &AuthError{Reason: "missing Digest header"}
	}
	if digestHeader != digestOf(in.Body) {
		return &AuthError{Reason: "digest mismatch"}
	}

	keyID := params["keyId"]
	if keyID == "" {
		return &AuthError{Reason: "missing keyId"}
	}
	pem, cached := e.Cache.Get(keyID)
	if !cached {
		fetched, err := e.Fetcher.FetchPublicKeyPEM(ctx, keyID)
		if err != nil {
			return &AuthError{Reason: "key fetch failed: " + err.Error()}
		}
		pem = fetched
		e.Cache.Put(keyID, pem)
	}
	pubKey, err := keys.ParsePublicKeyPEM(pem)
	if err != nil {
		e.Cache.Evict(keyID)
		return &AuthError{Reason: "invalid public key"}
	}

	signedString := buildSignedString(in.Method, in.Path, in.Headers.Get("Host"), date, digestHeader)
	hashed := sha256.Sum256([]byte(signedString))
	sigBytes, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil {
		e.Cache.Evict(keyID)
		return &AuthError{Reason: "unparseable signature"}
	}
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, hashed[:], sigBytes); err != nil {
		e.Cache.Evict(keyID)
		return &AuthError{Reason: "signature invalid"}
	}
	return nil
}

// StubEngine is the Engine without RSA key material. It produces syntactically valid but unverifiable signatures and refuses
// to verify anything, so a stub-signed activity is never mistaken for
// an authenticated one.
type StubEngine struct {
	Now func() time.Time
}

func (e *StubEngine) Capability() Capability { return CapabilityStub }

func (e *StubEngine) Sign(in SignInput) (SignedHeaders, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	date := now().UTC().Format(http.TimeFormat)
	digest := digestOf(in.Body)
	return SignedHeaders{
		Date:      date,
		Digest:    digest,
		Signature: signatureHeader(in.KeyID, "STUB_SIGNATURE_crypto_unavailable"),
	}, nil
}

func (e *StubEngine) Verify(ctx context.Context, in VerifyInput) error {
	return &AuthError{Reason: "signature engine is in stub mode and cannot verify"}
}

func parseSignatureHeader(header string) (map[string]string, error) {
	if header == "" {
		return nil, fmt.Errorf("missing Signature header")
	}
	params := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		params[strings.TrimSpace(k)] = strings.Trim(strings.TrimSpace(v), `"`)
	}
	if params["headers"] == "" || params["signature"] == "" {
		return nil, fmt.Errorf("malformed Signature header")
	}
	return params, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
