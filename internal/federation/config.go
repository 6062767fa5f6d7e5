// Package federation implements the HTTP surface (WebFinger, actor
// document, outbox, inbox, ledger, webhook), activity dispatch, and
// the per-follower delivery queue to remote inboxes.
package federation

import (
	"net/http"

	"quasiboard/internal/followers"
	"quasiboard/internal/httpsig"
	"quasiboard/internal/ledger"
	"quasiboard/internal/tasks"
)

// Config wires the federation server to the components it orchestrates.
type Config struct {
	Ledger    *ledger.Ledger
	Tasks     *tasks.Projector
	Followers *followers.Store
	Sig       httpsig.Engine
	Fetcher   httpsig.KeyFetcher

	// BoardURL is this instance's externally reachable base URL, e.g.
	// "https://board.example.com" (no trailing slash).
	BoardURL string
	// KeyID is this actor's own signing key identifier, the actor
	// document URL plus a fragment, e.g. BoardURL+"/quasi-board#main-key".
	KeyID string
	// PublicKeyPEM is this actor's own public key, published in the
	// actor document.
	PublicKeyPEM string
	// WebhookSecret is the 32-byte HMAC-SHA-256 key for inbound VCS
	// webhooks.
	WebhookSecret []byte
	// PreferredUsername is published in the actor document. The
	// WebFinger subject echoes the requested resource instead.
	PreferredUsername string

	HTTPClient *http.Client
}

func (c Config) actorURL() string { return c.BoardURL + "/quasi-board" }
func (c Config) inboxURL() string { return c.actorURL() + "/inbox" }
