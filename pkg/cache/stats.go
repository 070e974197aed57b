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
	"runtime/debug"
	"time"

	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// Stats is the JSON body served by GET /cache/stats.
type Stats struct {
	PlaylistEntries int   `json:"playlist_entries"`
	SegmentEntries  int   `json:"segment_entries"`
	KeyEntries      int   `json:"key_entries"`
	TotalBytes      int64 `json:"total_bytes"`
}

// Manager bundles the three stores and the periodic sweeper that evicts
// expired playlist entries and nudges the GC.
type Manager struct {
	Playlist *PlaylistCache
	Segment  *SegmentCache
	Key      *KeyCache

	sweepInterval time.Duration
	stopSweep     chan struct{}
}

func NewManager(playlist *PlaylistCache, segment *SegmentCache, key *KeyCache) *Manager {
	m := &Manager{
		Playlist:      playlist,
		Segment:       segment,
		Key:           key,
		sweepInterval: 30 * time.Second,
		stopSweep:     make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// sweepLoop evicts expired playlist entries and runs a GC hint on a
// wall-clock interval. It never blocks request handlers beyond the caches'
// own internal locking.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			before := m.Playlist.Len()
			m.Playlist.RemoveExpired()
			if after := m.Playlist.Len(); before != after {
				utils.DebugLog("playlist cache sweep removed %d expired entries", before-after)
			}
			debug.FreeOSMemory()
		case <-m.stopSweep:
			return
		}
	}
}

func (m *Manager) Stop() {
	close(m.stopSweep)
}

func (m *Manager) Stats() Stats {
	return Stats{
		PlaylistEntries: m.Playlist.Len(),
		SegmentEntries:  m.Segment.Len(),
		KeyEntries:      m.Key.Len(),
		TotalBytes:      m.Segment.TotalBytes(),
	}
}

// Clear empties every store. After this, stats().total_bytes == 0 and the
// next fetch of any previously cached URL goes back upstream.
func (m *Manager) Clear() {
	m.Playlist.Clear()
	m.Segment.Clear()
	m.Key.Clear()
}
