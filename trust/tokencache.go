package trust

import (
	"sync"
	"time"
)

// cachedToken is what the session and refresh caches hold per session_key:
// just enough to validate a later presented token without re-parsing it.
type cachedToken struct {
	Jti   string
	Token string
	Exp   time.Time
}

// tokenCache is a session_key-keyed map guarded by a single mutex, mirroring
// verify_hub's TOKEN_CACHE / REFRESH_TOKEN_CACHE (a Mutex<HashMap<...>>
// rather than an LRU: entries are looked up by exact session_key, not
// evicted by recency, and are removed explicitly on redemption or garbage
// collected by expiry).
type tokenCache struct {
	mu      sync.Mutex
	entries map[string]cachedToken
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[string]cachedToken)}
}

func (c *tokenCache) put(sessionKey string, t cachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionKey] = t
}

func (c *tokenCache) get(sessionKey string) (cachedToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[sessionKey]
	return t, ok
}

func (c *tokenCache) remove(sessionKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionKey)
}

// gc drops every entry that expired before now (gc_token_caches).
func (c *tokenCache) gc(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, t := range c.entries {
		if now.After(t.Exp) {
			delete(c.entries, k)
		}
	}
}

func (c *tokenCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// nearExpiry returns the session_keys whose entry expires within window of
// now (but hasn't expired yet), for the near-expiry refresh task.
func (c *tokenCache) nearExpiry(now time.Time, window time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var due []string
	for k, t := range c.entries {
		if !now.After(t.Exp) && t.Exp.Sub(now) <= window {
			due = append(due, k)
		}
	}
	return due
}
