package trust

import (
	"context"
	"crypto/ed25519"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cyfs-go/ndncore/internal/derr"
)

// KeySource resolves trust keys the cache doesn't already hold, mirroring
// the control-plane lookups verify_hub's get_trust_public_key_from_kid does
// for "root" (zone owner) and per-device kids.
type KeySource interface {
	OwnerKey(ctx context.Context) (ed25519.PublicKey, error)
	DeviceKey(ctx context.Context, deviceId string) (ed25519.PublicKey, error)
}

// KeyCache is the trust-key cache from spec.md §4.5.5: lazily populated,
// keyed by kid, evictable per-key or in full. The zone owner key and
// per-device keys are fetched through a KeySource on first miss; the
// verify-hub key itself is seeded directly at construction since the hub
// always knows its own public key.
type KeyCache struct {
	mu     sync.RWMutex
	lru    *lru.Cache[string, ed25519.PublicKey]
	source KeySource
}

// NewKeyCache builds a cache of the given capacity, seeding it with the
// hub's own verify-hub public key. source may be nil in tests that never
// need to resolve root/device keys.
func NewKeyCache(capacity int, hubPublicKey ed25519.PublicKey, source KeySource) (*KeyCache, error) {
	c, err := lru.New[string, ed25519.PublicKey](capacity)
	if err != nil {
		return nil, derr.Wrap(derr.IoError, "NewKeyCache", "", err)
	}
	c.Add(IssuerVerifyHub, hubPublicKey)
	return &KeyCache{lru: c, source: source}, nil
}

// Put inserts or overwrites a key under kid (used by tests and by explicit
// trust provisioning).
func (c *KeyCache) Put(kid string, key ed25519.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(kid, key)
}

// Remove implements remove_trust_key(kid).
func (c *KeyCache) Remove(kid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(kid)
}

// Clear evicts every cached key.
func (c *KeyCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Get resolves kid, consulting the KeySource on a cache miss and caching
// the result. An empty kid is treated as the verify-hub key, per
// get_trust_public_key_from_kid's `kid.unwrap_or("verify-hub")`.
func (c *KeyCache) Get(ctx context.Context, kid string) (ed25519.PublicKey, error) {
	if kid == "" {
		kid = IssuerVerifyHub
	}

	c.mu.RLock()
	if key, ok := c.lru.Get(kid); ok {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()

	if c.source == nil {
		return nil, derr.New(derr.NotFound, "trust.KeyCache", "no trust key for kid "+kid)
	}

	var key ed25519.PublicKey
	var err error
	if kid == KidRoot {
		key, err = c.source.OwnerKey(ctx)
	} else {
		key, err = c.source.DeviceKey(ctx, kid)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lru.Add(kid, key)
	c.mu.Unlock()
	return key, nil
}
