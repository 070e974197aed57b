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

package playlist

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/hlsrelay/pkg/config"
	"github.com/kestrelnet/hlsrelay/pkg/headercodec"
	"github.com/kestrelnet/hlsrelay/pkg/upstream"
)

const serverBase = "https://relay.example"

func TestRewriteMediaPlaylistDirectPassThrough(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:-1,\nhttps://cdn.example.com/a/seg1.ts"
	base, err := url.Parse("https://example.com/live/chan.m3u8")
	require.NoError(t, err)

	out, err := RewriteMediaPlaylist(body, base, headercodec.Headers{}, serverBase)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	last := lines[len(lines)-1]
	assert.Equal(t, serverBase+"/proxy/ts?url=https%3A%2F%2Fcdn.example.com%2Fa%2Fseg1.ts", last)
}

func TestRewriteMediaPlaylistResolvesRelativeSegmentAgainstRedirectedBase(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:-1,\nseg1.ts"
	base, err := url.Parse("https://example.com/v2/chan.m3u8")
	require.NoError(t, err)

	out, err := RewriteMediaPlaylist(body, base, headercodec.Headers{}, serverBase)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	last := lines[len(lines)-1]
	assert.Equal(t, serverBase+"/proxy/ts?url=https%3A%2F%2Fexample.com%2Fv2%2Fseg1.ts", last)
}

func TestRewriteMediaPlaylistAESKeyURI(t *testing.T) {
	body := `#EXTM3U
#EXT-X-KEY:METHOD=AES-128,URI="https://k.example/key.bin",IV=0x00000000000000000000000000000001
#EXTINF:-1,
seg1.ts`
	base, err := url.Parse("https://example.com/live/chan.m3u8")
	require.NoError(t, err)

	out, err := RewriteMediaPlaylist(body, base, headercodec.Headers{}, serverBase)
	require.NoError(t, err)

	var keyLine string
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, "#EXT-X-KEY") {
			keyLine = l
		}
	}
	require.NotEmpty(t, keyLine)
	assert.Contains(t, keyLine, `URI="`+serverBase+`/proxy/key?url=https%3A%2F%2Fk.example%2Fkey.bin"`)
	assert.Contains(t, keyLine, "METHOD=AES-128")
	assert.Contains(t, keyLine, "IV=0x00000000000000000000000000000001")
}

func TestRewriteMediaPlaylistCarriesForwardedHeaders(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:-1,\nseg1.ts"
	base, err := url.Parse("https://example.com/live/chan.m3u8")
	require.NoError(t, err)

	headers := headercodec.Headers{
		"Referer":    "https://a.example/",
		"User-Agent": "X",
	}

	out, err := RewriteMediaPlaylist(body, base, headers, serverBase)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	last := lines[len(lines)-1]
	assert.Contains(t, last, "h_Referer=https%3A%2F%2Fa.example%2F")
	assert.Contains(t, last, "h_User-Agent=X")
}

func TestDetectMediaPlaylistVsMasterList(t *testing.T) {
	assert.Equal(t, KindM3U8, Detect("#EXTM3U\n#EXTINF:-1,\nseg1.ts\n"))
	assert.Equal(t, KindM3U, Detect("#EXTM3U\nhttps://example.com/chan1.m3u8\n"))
}

func testPolicy() *upstream.Policy {
	return upstream.NewPolicy(&config.ProxyConfig{
		NoProxyHosts: []string{"pluto.tv"},
		PolicyRules:  config.DefaultPolicyRules(),
	})
}

func TestIngestRewritePassesThroughNoProxyHosts(t *testing.T) {
	body := "#EXTM3U\n#EXTINF:-1,Channel\nhttps://service.pluto.tv/v2/chan1.m3u8"
	out := IngestRewrite(body, testPolicy(), serverBase)

	assert.Contains(t, out, "https://service.pluto.tv/v2/chan1.m3u8")
	assert.NotContains(t, out, "/proxy/m3u")
}

func TestIngestRewriteAppliesEXTVLCOptToNextLineOnly(t *testing.T) {
	body := `#EXTM3U
#EXTINF:-1,Channel A
#EXTVLCOPT:http-user-agent=MyPlayer,http-referer=https://a.example/
https://cdn.example.com/a.m3u8
#EXTINF:-1,Channel B
https://cdn.example.com/b.m3u8`

	out := IngestRewrite(body, testPolicy(), serverBase)
	lines := strings.Split(out, "\n")

	var lineA, lineB string
	for _, l := range lines {
		if strings.Contains(l, "a.m3u8") && strings.HasPrefix(l, serverBase) {
			lineA = l
		}
		if strings.Contains(l, "b.m3u8") && strings.HasPrefix(l, serverBase) {
			lineB = l
		}
	}

	require.NotEmpty(t, lineA)
	require.NotEmpty(t, lineB)
	assert.Contains(t, lineA, "%26h_")
	assert.NotContains(t, lineB, "%26h_", "headers must not leak onto a later, unrelated URL line")
}

func TestIngestRewriteEXTHTTPJSON(t *testing.T) {
	body := `#EXTM3U
#EXTINF:-1,Channel A
#EXTHTTP:{"Referer":"https://origin.example/","Cookie":"session=1"}
https://cdn.example.com/a.m3u8`

	out := IngestRewrite(body, testPolicy(), serverBase)
	assert.Contains(t, out, "h_Referer")
	assert.Contains(t, out, "h_Cookie")
}
