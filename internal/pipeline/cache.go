package pipeline

// Cached metrics
const (
	metricReadings   = "readings"
	metricPower      = "power"
	metricComparison = "comparison"
)

// Key identifies a cached result by the selection that produced it.
// Comparisons span both controllers and leave Controller empty; entries that
// do not depend on the heater baseline leave HeaterWatts zero.
type Key struct {
	Controller  string
	Selection   string
	Metric      string
	HeaterWatts float64
}

// CacheStats counts cache traffic since the last Clear.
type CacheStats struct {
	Entries int `json:"entries"`
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
}

// Cache holds query results and comparisons between requests. It is not safe
// for concurrent use; Service serialises access.
type Cache struct {
	entries map[Key]any
	hits    int
	misses  int
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Key]any)}
}

func (c *Cache) Get(k Key) (any, bool) {
	v, ok := c.entries[k]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *Cache) Put(k Key, v any) {
	c.entries[k] = v
}

// Invalidate drops every entry for which match returns true and reports how
// many were removed.
func (c *Cache) Invalidate(match func(Key) bool) int {
	n := 0
	for k := range c.entries {
		if match(k) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() int {
	n := len(c.entries)
	c.entries = make(map[Key]any)
	c.hits, c.misses = 0, 0
	return n
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}
