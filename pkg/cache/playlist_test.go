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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylistCacheExpiresAfterTTL(t *testing.T) {
	pc := NewPlaylistCache(30*time.Millisecond, 10)
	key := PlaylistKey("https://example.com/live.m3u8", nil)

	pc.Put(key, PlaylistEntry{Body: "#EXTM3U\n"})

	_, ok := pc.Get(key)
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = pc.Get(key)
	assert.False(t, ok, "a cached playlist must never be served after its TTL elapses")
}

func TestPlaylistCacheHitsDoNotExtendTTL(t *testing.T) {
	pc := NewPlaylistCache(60*time.Millisecond, 10)
	key := PlaylistKey("https://example.com/live.m3u8", nil)
	pc.Put(key, PlaylistEntry{Body: "#EXTM3U\n"})

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		pc.Get(key)
		time.Sleep(10 * time.Millisecond)
	}

	_, ok := pc.Get(key)
	assert.False(t, ok, "repeated hits must not renew an entry's lifetime")
}

func TestPlaylistKeyDistinguishesForwardedHeaders(t *testing.T) {
	k1 := PlaylistKey("https://example.com/live.m3u8", map[string]string{"Referer": "https://a.example/"})
	k2 := PlaylistKey("https://example.com/live.m3u8", map[string]string{"Referer": "https://b.example/"})
	assert.NotEqual(t, k1, k2)
}

func TestPlaylistKeyIsOrderIndependent(t *testing.T) {
	k1 := PlaylistKey("https://example.com/live.m3u8", map[string]string{
		"Referer":    "https://a.example/",
		"User-Agent": "ua",
	})
	k2 := PlaylistKey("https://example.com/live.m3u8", map[string]string{
		"User-Agent": "ua",
		"Referer":    "https://a.example/",
	})
	assert.Equal(t, k1, k2)
}

func TestPlaylistCacheClear(t *testing.T) {
	pc := NewPlaylistCache(10*time.Second, 10)
	key := PlaylistKey("https://example.com/live.m3u8", nil)
	pc.Put(key, PlaylistEntry{Body: "#EXTM3U\n"})

	pc.Clear()

	_, ok := pc.Get(key)
	assert.False(t, ok)
}
