package debrid

import (
	"testing"
	"time"
)

func TestUnrestrictCacheGetSetRoundtrip(t *testing.T) {
	c := newUnrestrictCache()
	dl := DownloadLink{ID: "1", Link: "https://example.com/file"}
	c.put("https://real-debrid.com/d/abc", dl)

	got, ok := c.get("https://real-debrid.com/d/abc")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Link != dl.Link {
		t.Fatalf("expected %q, got %q", dl.Link, got.Link)
	}
}

func TestUnrestrictCacheExpiresAfterTTL(t *testing.T) {
	c := newUnrestrictCache()
	c.entries.Set("k", downloadCacheEntry{link: DownloadLink{ID: "1"}, generated: time.Now().Add(-2 * time.Hour)})

	if _, ok := c.get("k"); ok {
		t.Fatal("expected expired entry to miss")
	}
}

func TestUnrestrictCacheEvictsOldestOverCap(t *testing.T) {
	c := newUnrestrictCache()
	base := time.Now().Add(-time.Hour / 2)
	for i := 0; i < maxUnrestrictCacheEntries+5; i++ {
		key := "k" + string(rune('a'+i%26)) + string(rune(i))
		c.entries.Set(key, downloadCacheEntry{link: DownloadLink{ID: key}, generated: base.Add(time.Duration(i) * time.Millisecond)})
	}

	c.evictExpiredThenOldest()

	if c.entries.Count() > maxUnrestrictCacheEntries {
		t.Fatalf("expected count <= %d after eviction, got %d", maxUnrestrictCacheEntries, c.entries.Count())
	}

	oldestKey := "k" + string(rune('a')) + string(rune(0))
	if _, ok := c.entries.Get(oldestKey); ok {
		t.Fatalf("expected the oldest entry %q to be evicted", oldestKey)
	}
	newest := maxUnrestrictCacheEntries + 4
	newestKey := "k" + string(rune('a'+newest%26)) + string(rune(newest))
	if _, ok := c.entries.Get(newestKey); !ok {
		t.Fatal("expected the newest entry to survive eviction")
	}
}
