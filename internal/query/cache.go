package query

import "sync"

// Cache memoizes ParsedQuery values by their literal input string for the
// duration of a search session. Repeat submissions of the same text skip
// reparsing entirely.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*ParsedQuery
}

// NewCache returns an empty parse cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*ParsedQuery)}
}

// Parse returns the cached result for raw, parsing and storing it on a miss.
func (c *Cache) Parse(raw string) (*ParsedQuery, error) {
	c.mu.RLock()
	cached, ok := c.entries[raw]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	parsed, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[raw] = parsed
	c.mu.Unlock()
	return parsed, nil
}
