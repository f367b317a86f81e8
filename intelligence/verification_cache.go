package intelligence

import "sync"

// cachedVerdict is the memoized outcome of verifying a workflow config.
type cachedVerdict struct {
	Valid  bool
	Errors []string
}

// VerificationCache memoizes verification outcomes keyed by structural hash,
// for the duration of a single evolution run. Keyed by an explicit
// sha256-derived GenomeHash rather than an ad-hoc equality check.
type VerificationCache struct {
	mu    sync.RWMutex
	cache map[string]cachedVerdict
}

// NewVerificationCache constructs an empty cache.
func NewVerificationCache() *VerificationCache {
	return &VerificationCache{cache: make(map[string]cachedVerdict)}
}

// Get returns the cached verdict for key, if present.
func (c *VerificationCache) Get(key string) (valid bool, errs []string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cache[key]
	if !ok {
		return false, nil, false
	}
	return v.Valid, v.Errors, true
}

// Put memoizes the verdict for key.
func (c *VerificationCache) Put(key string, valid bool, errs []string) {
	c.mu.Lock()
	c.cache[key] = cachedVerdict{Valid: valid, Errors: errs}
	c.mu.Unlock()
}

// Len reports the number of memoized entries, mainly for tests.
func (c *VerificationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
