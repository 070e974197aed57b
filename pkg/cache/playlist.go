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

// Package cache implements the proxy's three bounded stores: PlaylistCache
// (TTL), SegmentCache (LRU + byte budget) and KeyCache (LRU).
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// PlaylistEntry is a cached, already-rewritten playlist document.
type PlaylistEntry struct {
	Body        string
	ContentType string
}

// PlaylistCache holds rewritten playlists keyed by (url, forwarded-header
// fingerprint) with a hard TTL; a live HLS playlist is never served stale.
type PlaylistCache struct {
	c *ttlcache.Cache[string, PlaylistEntry]
}

func NewPlaylistCache(ttl time.Duration, capacity int) *PlaylistCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if capacity <= 0 {
		capacity = 200
	}
	// Touch-on-hit is disabled so expiry is measured from insertion: a hot
	// playlist requested by many viewers must still drop at its TTL rather
	// than having every hit renew it.
	c := ttlcache.New[string, PlaylistEntry](
		ttlcache.WithTTL[string, PlaylistEntry](ttl),
		ttlcache.WithCapacity[string, PlaylistEntry](uint64(capacity)),
		ttlcache.WithDisableTouchOnHit[string, PlaylistEntry](),
	)
	go c.Start()
	return &PlaylistCache{c: c}
}

// PlaylistKey builds a cache key from the target URL and the exact forwarded
// header set used to fetch it, canonicalised so header order never affects
// the key. The segment and key stores share the same keying scheme.
func PlaylistKey(targetURL string, headers map[string]string) string {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, strings.ToLower(k))
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(targetURL)
	for _, n := range names {
		b.WriteByte('\x00')
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(headers[canonicalHeaderCase(headers, n)])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func canonicalHeaderCase(headers map[string]string, lower string) string {
	for k := range headers {
		if strings.EqualFold(k, lower) {
			return k
		}
	}
	return lower
}

func (p *PlaylistCache) Get(key string) (PlaylistEntry, bool) {
	item := p.c.Get(key)
	if item == nil {
		return PlaylistEntry{}, false
	}
	return item.Value(), true
}

func (p *PlaylistCache) Put(key string, entry PlaylistEntry) {
	p.c.Set(key, entry, ttlcache.DefaultTTL)
}

func (p *PlaylistCache) RemoveExpired() {
	p.c.DeleteExpired()
}

func (p *PlaylistCache) Clear() {
	p.c.DeleteAll()
}

func (p *PlaylistCache) Len() int {
	return p.c.Len()
}
