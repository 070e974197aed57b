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

// Package playlist implements line-based parsing and rewriting of HLS media
// playlists and plain/master M3U channel lists.
package playlist

import "strings"

// Kind is what Detect classifies a fetched body as.
type Kind int

const (
	// KindM3U is a master/plain channel list, passed through unrewritten
	// except for the ingest endpoint's per-line directive rewrite.
	KindM3U Kind = iota
	// KindM3U8 is a media playlist listing segments directly.
	KindM3U8
)

// Detect classifies body: both "#EXTM3U" and "#EXTINF" present
// means a media playlist; anything else starting with "#EXTM3U" is a plain
// list passed through unrewritten.
func Detect(body string) Kind {
	if strings.Contains(body, "#EXTM3U") && strings.Contains(body, "#EXTINF") {
		return KindM3U8
	}
	return KindM3U
}
