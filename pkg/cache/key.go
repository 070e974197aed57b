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
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedKey is a fetched AES-128 key, small enough that no byte budget is
// warranted beyond plain LRU.
type CachedKey struct {
	Body     []byte
	CachedAt time.Time
}

// KeyCache is a pure LRU store, sized at half the segment cache's entry
// count by convention.
type KeyCache struct {
	lru *lru.Cache[string, CachedKey]
}

func NewKeyCache(capacity int) *KeyCache {
	if capacity <= 0 {
		capacity = 1000
	}
	l, err := lru.New[string, CachedKey](capacity)
	if err != nil {
		l, _ = lru.New[string, CachedKey](1000)
	}
	return &KeyCache{lru: l}
}

func (kc *KeyCache) Get(key string) (CachedKey, bool) {
	return kc.lru.Get(key)
}

func (kc *KeyCache) Put(key string, body []byte) {
	kc.lru.Add(key, CachedKey{Body: body, CachedAt: time.Now()})
}

func (kc *KeyCache) Clear() {
	kc.lru.Purge()
}

func (kc *KeyCache) Len() int {
	return kc.lru.Len()
}
