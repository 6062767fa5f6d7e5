package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// KeyFetcher resolves a keyId URL to the owning actor's PEM-encoded
// public key by fetching the actor document and reading
// publicKey.publicKeyPem. The keyId's fragment (if any) is never sent
// on the wire; http.Request strips it automatically.
type KeyFetcher struct {
	Client *http.Client
}

func (f *KeyFetcher) FetchPublicKeyPEM(ctx context.Context, keyID string) (string, error) {
	doc, err := fetchActorDocument(ctx, f.client(), keyID)
	if err != nil {
		return "", err
	}
	if doc.PublicKey.PublicKeyPem == "" {
		return "", fmt.Errorf("federation: actor document at %s has no publicKey.publicKeyPem", keyID)
	}
	return doc.PublicKey.PublicKeyPem, nil
}

func (f *KeyFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// ResolvedActor is what the federation server needs from a remote
// actor to record it as a follower: its inbox and public key.
type ResolvedActor struct {
	InboxURL     string
	PublicKeyPEM string
}

// ResolveActor fetches actorURL's actor document and extracts its
// inbox and public key, for recording a new follower on Follow.
func ResolveActor(ctx context.Context, client *http.Client, actorURL string) (ResolvedActor, error) {
	doc, err := fetchActorDocument(ctx, client, actorURL)
	if err != nil {
		return ResolvedActor{}, err
	}
	if doc.Inbox == "" {
		return ResolvedActor{}, fmt.Errorf("federation: actor document at %s has no inbox", actorURL)
	}
	return ResolvedActor{InboxURL: doc.Inbox, PublicKeyPEM: doc.PublicKey.PublicKeyPem}, nil
}

func fetchActorDocument(ctx context.Context, client *http.Client, actorURL string) (actorBody, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURL, nil)
	if err != nil {
		return actorBody{}, err
	}
	req.Header.Set("Accept", "application/activity+json")
	resp, err := client.Do(req)
	if err != nil {
		return actorBody{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return actorBody{}, fmt.Errorf("federation: fetching %s: status %d", actorURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return actorBody{}, err
	}
	var doc actorBody
	if err := json.Unmarshal(body, &doc); err != nil {
		return actorBody{}, fmt.Errorf("federation: parsing actor document at %s: %w", actorURL, err)
	}
	return doc, nil
}
