package httpsig

import (
	"sync"
	"time"
)

// KeyCacheTTL is the freshness window for a fetched public key. It is
// never extended by a negative result, and a verification failure
// evicts the entry immediately to tolerate key rotation.
const KeyCacheTTL = time.Hour

type keyCacheEntry struct {
	pem       string
	fetchedAt time.Time
}

// KeyCache is the signer public-key cache: keyId -> (PEM, fetchedAt).
type KeyCache struct {
	mu      sync.RWMutex
	entries map[string]keyCacheEntry
	now     func() time.Time
}

// NewKeyCache returns an empty cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{entries: make(map[string]keyCacheEntry), now: time.Now}
}

// Get returns the cached PEM for keyID if present and not expired.
func (c *KeyCache) Get(keyID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[keyID]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.fetchedAt) > KeyCacheTTL {
		return "", false
	}
	return entry.pem, true
}

// Put inserts or refreshes a cache entry.
func (c *KeyCache) Put(keyID, pem string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[keyID] = keyCacheEntry{pem: pem, fetchedAt: c.now()}
}

// Evict removes a cache entry, forcing the next verification to
// re-fetch. Called on verification failure to tolerate key rotation.
func (c *KeyCache) Evict(keyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, keyID)
}
