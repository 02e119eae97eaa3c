package navigation

import (
	"fmt"
	"sync"
	"time"

	"fieldcollect-backend/internal/metrics"
	"fieldcollect-backend/internal/models"
)

// segmentKey is everything a segmentation result depends on. The current
// fix is deliberately absent: the navigation line refreshes when a record
// lands or tracking toggles, not on every fix.
type segmentKey struct {
	routeID        string
	trackingActive bool
	recordCount    int
}

// segmentEntry is the last segmentation computed for a route
type segmentEntry struct {
	key          segmentKey
	segments     *models.RouteSegments
	createdAt    time.Time
	lastAccessed time.Time
	hitCount     int
}

// segmentCache keeps one entry per route; a new key for a route replaces it
type segmentCache struct {
	mu      sync.Mutex
	entries map[string]*segmentEntry
	stats   CacheStats
}

// CacheStats tracks segmentation cache performance
type CacheStats struct {
	Hits          int64
	Misses        int64
	Recomputed    int64
	Invalidations int64
}

func newSegmentCache() *segmentCache {
	return &segmentCache{entries: make(map[string]*segmentEntry)}
}

// get returns the cached segments when key matches the route's last entry
func (c *segmentCache) get(key segmentKey) (*models.RouteSegments, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[key.routeID]
	if !found || entry.key != key {
		c.stats.Misses++
		metrics.SegmentCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	entry.lastAccessed = time.Now()
	entry.hitCount++
	c.stats.Hits++
	metrics.SegmentCache.WithLabelValues("hit").Inc()
	return entry.segments, true
}

func (c *segmentCache) set(key segmentKey, segments *models.RouteSegments) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.entries[key.routeID] = &segmentEntry{
		key:          key,
		segments:     segments,
		createdAt:    now,
		lastAccessed: now,
	}
	c.stats.Recomputed++
}

func (c *segmentCache) invalidate(routeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[routeID]; ok {
		delete(c.entries, routeID)
		c.stats.Invalidations++
	}
}

func (c *segmentCache) snapshot() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// GetStats returns cache statistics
func (c *segmentCache) GetStats() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	hitRate := 0.0
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		hitRate = float64(c.stats.Hits) / float64(total) * 100
	}

	return map[string]interface{}{
		"cache_size":    len(c.entries),
		"hits":          c.stats.Hits,
		"misses":        c.stats.Misses,
		"hit_rate":      fmt.Sprintf("%.2f%%", hitRate),
		"recomputed":    c.stats.Recomputed,
		"invalidations": c.stats.Invalidations,
	}
}
