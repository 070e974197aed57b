/*
 * hlsrelay is an HTTP reverse proxy specialised for HLS streaming.
 * Copyright (C) 2025  hlsrelay contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedSegment is a fetched media segment, held only in memory.
type CachedSegment struct {
	Body     []byte
	CachedAt time.Time
	Size     int64
}

// SegmentCache is an LRU store additionally bounded by a total byte budget:
// an item larger than MaxItemBytes is never cached at all, and the least
// recently used entries are evicted whenever the running total exceeds
// MaxTotalBytes, in addition to the LRU's own entry-count bound.
type SegmentCache struct {
	mu            sync.Mutex
	lru           *lru.Cache[string, CachedSegment]
	totalBytes    int64
	maxTotalBytes int64
	maxItemBytes  int64
}

func NewSegmentCache(maxItems int, maxTotalBytes, maxItemBytes int64) *SegmentCache {
	if maxItems <= 0 {
		maxItems = 2000
	}
	if maxTotalBytes <= 0 {
		maxTotalBytes = 512 * 1024 * 1024
	}
	if maxItemBytes <= 0 {
		maxItemBytes = 8 * 1024 * 1024
	}

	sc := &SegmentCache{
		maxTotalBytes: maxTotalBytes,
		maxItemBytes:  maxItemBytes,
	}

	l, err := lru.NewWithEvict[string, CachedSegment](maxItems, func(_ string, value CachedSegment) {
		sc.totalBytes -= value.Size
	})
	if err != nil {
		// maxItems is always > 0 above, so lru.New never actually fails here.
		l, _ = lru.New[string, CachedSegment](2000)
	}
	sc.lru = l
	return sc
}

// Get returns a previously cached segment body.
func (sc *SegmentCache) Get(key string) (CachedSegment, bool) {
	return sc.lru.Get(key)
}

// Put stores a segment if it fits under MaxItemBytes, then evicts the
// oldest entries until total bytes is back under MaxTotalBytes. Safe for
// concurrent callers racing on the same key: the last writer wins and no
// partial or negative entry is ever left cached.
func (sc *SegmentCache) Put(key string, body []byte) {
	size := int64(len(body))
	if size > sc.maxItemBytes {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if old, ok := sc.lru.Peek(key); ok {
		sc.totalBytes -= old.Size
	}

	sc.lru.Add(key, CachedSegment{Body: body, CachedAt: time.Now(), Size: size})
	sc.totalBytes += size

	for sc.totalBytes > sc.maxTotalBytes {
		_, _, ok := sc.lru.RemoveOldest()
		if !ok {
			break
		}
	}
}

func (sc *SegmentCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.lru.Purge()
	sc.totalBytes = 0
}

func (sc *SegmentCache) Len() int {
	return sc.lru.Len()
}

// TotalBytes reports the current running total, used by /cache/stats.
func (sc *SegmentCache) TotalBytes() int64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.totalBytes
}

// MaxItemBytes exposes the per-item cap so callers (the tee-to-cache
// streaming path) know when to abandon buffering but keep streaming.
func (sc *SegmentCache) MaxItemBytes() int64 {
	return sc.maxItemBytes
}
