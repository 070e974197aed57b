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

package utils

// MaskString masks a sensitive value for logging, keeping only enough of it
// to recognise in a log stream.
func MaskString(s string) string {
	if len(s) == 0 {
		return "[empty]"
	}
	if len(s) <= 8 {
		return s[:1] + "******"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// sensitiveHeaders lists header names whose values should never be logged
// verbatim (forwarded auth/cookie material travels through h_* params).
var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
}

// IsSensitiveHeader reports whether a header name should be masked in logs.
func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[lower(name)]
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
