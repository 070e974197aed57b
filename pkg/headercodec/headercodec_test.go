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

package headercodec

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    Headers
	}{
		{"empty", Headers{}},
		{"single", Headers{"Referer": "https://example.com/a/b?c=d"}},
		{"multi", Headers{
			"Referer":    "https://example.com/",
			"User-Agent": "Mozilla/5.0 (Go test runner)",
		}},
		{"value with ampersand and equals", Headers{
			"X-Token": "a=1&b=2",
		}},
		{"unicode value", Headers{
			"X-Note": "café ☃",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.h)
			values, err := url.ParseQuery(encoded)
			require.NoError(t, err)

			got := Decode(values)
			assert.Equal(t, tt.h, got)
		})
	}
}

func TestEncodeIsSortedAndDeterministic(t *testing.T) {
	h := Headers{
		"User-Agent": "ua",
		"Accept":     "*/*",
		"Referer":    "https://example.com/",
	}

	first := Encode(h)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Encode(h))
	}
	assert.Equal(t, "h_Accept=%2A%2F%2A&h_Referer=https%3A%2F%2Fexample.com%2F&h_User-Agent=ua", first)
}

func TestDecodeIgnoresNonHeaderParams(t *testing.T) {
	values, err := url.ParseQuery("url=https%3A%2F%2Fexample.com&h_Referer=ref&other=1")
	require.NoError(t, err)

	got := Decode(values)
	assert.Equal(t, Headers{"Referer": "ref"}, got)
}

func TestDecodeUnderscoreBecomesDashInHeaderName(t *testing.T) {
	values, err := url.ParseQuery("h_User_Agent=ua")
	require.NoError(t, err)

	got := Decode(values)
	assert.Equal(t, Headers{"User-Agent": "ua"}, got)
}

func TestEncodeDoubleForIngestNoHeaders(t *testing.T) {
	target := url.QueryEscape("https://example.com/list.m3u8")
	assert.Equal(t, "url="+target, EncodeDoubleForIngest(target, Headers{}))
}

func TestEncodeDoubleForIngestSeparatorIsDoubleEncoded(t *testing.T) {
	target := url.QueryEscape("https://example.com/list.m3u8")
	h := Headers{"Referer": "https://example.com/"}

	got := EncodeDoubleForIngest(target, h)

	want := "url=" + target + "%26h_Referer=https%3A%2F%2Fexample.com%2F"
	assert.Equal(t, want, got)

	// The "=" inside each h_ pair stays literal; only the pair separator
	// ("&" between url=... and the header tail, and between header pairs)
	// is encoded to "%26".
	assert.NotContains(t, got, "%3D", "assignment operator must stay literal '='")
}

func TestEncodeDoubleForIngestMultipleHeadersJoinedByDoubleEncodedAmpersand(t *testing.T) {
	target := url.QueryEscape("https://example.com/list.m3u8")
	h := Headers{
		"Referer":    "https://example.com/",
		"User-Agent": "ua",
	}

	got := EncodeDoubleForIngest(target, h)

	singleTail := Encode(h)
	wantTail := ""
	for i, r := range singleTail {
		if r == '&' {
			wantTail += "%26"
		} else {
			wantTail += string(singleTail[i])
		}
	}
	assert.Equal(t, "url="+target+"%26"+wantTail, got)
}

func TestMergeOverridesCaseInsensitively(t *testing.T) {
	base := Headers{"Referer": "https://a.example/", "Accept": "*/*"}
	overrides := Headers{"referer": "https://b.example/"}

	got := Merge(base, overrides)

	assert.Equal(t, "https://b.example/", got["referer"])
	assert.Equal(t, "*/*", got["Accept"])
	assert.Len(t, got, 2)
}

func TestToHTTPHeader(t *testing.T) {
	h := Headers{"Referer": "https://example.com/"}
	got := h.ToHTTPHeader()
	assert.Equal(t, []string{"https://example.com/"}, got["Referer"])
}
