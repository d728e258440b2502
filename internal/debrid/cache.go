package debrid

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// unrestrictCacheTTL and maxUnrestrictCacheEntries bound the unrestrict
// cache: entries expire after 1 hour, and the cache never grows past
// 10,000 entries.
const (
	unrestrictCacheTTL      = time.Hour
	maxUnrestrictCacheEntries = 10000
	failedCacheDefaultTTL   = time.Hour
)

type unrestrictCache struct {
	entries cmap.ConcurrentMap[string, downloadCacheEntry]
	failed  cmap.ConcurrentMap[string, failedUnrestrictEntry]
}

func newUnrestrictCache() *unrestrictCache {
	return &unrestrictCache{
		entries: cmap.New[downloadCacheEntry](),
		failed:  cmap.New[failedUnrestrictEntry](),
	}
}

func (c *unrestrictCache) get(link string) (DownloadLink, bool) {
	entry, ok := c.entries.Get(link)
	if !ok {
		return DownloadLink{}, false
	}
	if time.Since(entry.generated) > unrestrictCacheTTL {
		c.entries.Remove(link)
		return DownloadLink{}, false
	}
	return entry.link, true
}

// put stores a fresh unrestrict result, evicting expired entries and then
// (if still over the cap) the single oldest entry.
func (c *unrestrictCache) put(link string, dl DownloadLink) {
	c.entries.Set(link, downloadCacheEntry{link: dl, generated: time.Now()})
	if c.entries.Count() <= maxUnrestrictCacheEntries {
		return
	}
	c.evictExpiredThenOldest()
}

// evictExpiredThenOldest first drops every expired entry, then — if the
// cache is still over the cap — repeatedly drops the single oldest
// remaining entry until it fits.
func (c *unrestrictCache) evictExpiredThenOldest() {
	now := time.Now()
	for item := range c.entries.IterBuffered() {
		if now.Sub(item.Val.generated) > unrestrictCacheTTL {
			c.entries.Remove(item.Key)
		}
	}

	for c.entries.Count() > maxUnrestrictCacheEntries {
		var oldestKey string
		var oldestTime time.Time
		for item := range c.entries.IterBuffered() {
			if oldestTime.IsZero() || item.Val.generated.Before(oldestTime) {
				oldestTime = item.Val.generated
				oldestKey = item.Key
			}
		}
		if oldestKey == "" {
			return
		}
		c.entries.Remove(oldestKey)
	}
}

func (c *unrestrictCache) getFailed(link string) (failedUnrestrictEntry, bool) {
	entry, ok := c.failed.Get(link)
	if !ok {
		return failedUnrestrictEntry{}, false
	}
	ttl := failedCacheDefaultTTL
	if time.Since(entry.timestamp) > ttl {
		c.failed.Remove(link)
		return failedUnrestrictEntry{}, false
	}
	return entry, true
}

func (c *unrestrictCache) putFailed(link, errMsg string, errorCode int) {
	c.failed.Set(link, failedUnrestrictEntry{errMsg: errMsg, errorCode: errorCode, timestamp: time.Now()})
}

func (c *unrestrictCache) clear() {
	c.entries.Clear()
	c.failed.Clear()
}

func (c *unrestrictCache) size() int {
	return c.entries.Count()
}
