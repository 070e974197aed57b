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

package resolver

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/hlsrelay/pkg/config"
	"github.com/kestrelnet/hlsrelay/pkg/upstream"
)

func TestNormalizeLandingURLPremiumMono(t *testing.T) {
	got, changed := normalizeLandingURL("https://cdn.example/premium42/mono.m3u8", "https://landing.example/")
	assert.True(t, changed)
	assert.Equal(t, "https://landing.example/watch/stream-42.php", got)
}

func TestNormalizeLandingURLOhaPlay(t *testing.T) {
	got, changed := normalizeLandingURL("https://oha.to/play/7/index.m3u8", "https://landing.example/")
	assert.True(t, changed)
	assert.Equal(t, "https://landing.example/watch/stream-7.php", got)
}

func TestNormalizeLandingURLPureInteger(t *testing.T) {
	got, changed := normalizeLandingURL("123", "https://landing.example/")
	assert.True(t, changed)
	assert.Equal(t, "https://landing.example/watch/stream-123.php", got)
}

func TestNormalizeLandingURLDaddyLiveHost(t *testing.T) {
	got, changed := normalizeLandingURL("https://thedaddy.to/stream/stream-99.php", "https://landing.example/")
	assert.True(t, changed)
	assert.Equal(t, "https://landing.example/watch/stream-99.php", got)
}

func TestNormalizeLandingURLUnchangedForOrdinaryURL(t *testing.T) {
	got, changed := normalizeLandingURL("https://example.com/live/chan.m3u8", "https://landing.example/")
	assert.False(t, changed)
	assert.Equal(t, "https://example.com/live/chan.m3u8", got)
}

func newTestResolver(t *testing.T, landing *httptest.Server) *Resolver {
	t.Helper()
	conf := &config.ProxyConfig{
		RequestTimeout: 0,
		LandingBaseURL: landing.URL + "/",
	}
	policy := upstream.NewPolicy(conf)
	client := upstream.NewClient(conf, policy)
	return New(client, conf)
}

func TestResolveDirectM3U8FastPath(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n#EXTINF:-1,\nhttps://cdn.example.com/seg1.ts"))
	}))
	defer upstreamSrv.Close()

	resolver := newTestResolver(t, upstreamSrv)
	target, err := url.Parse(upstreamSrv.URL + "/live/chan.m3u8")
	require.NoError(t, err)

	result := resolver.Resolve(context.Background(), target, nil)
	require.NotNil(t, result)
	assert.Equal(t, upstreamSrv.URL+"/live/chan.m3u8", result.URL.String())
	assert.True(t, strings.HasPrefix(string(result.Body), "#EXTM3U"),
		"the probe body must be handed back so the caller does not fetch twice")
}

// A landing page with no "Player 2" anchor must cause the resolver to fall
// back to the cleaned input URL rather than erroring.
func TestResolveIframeChainNegativeFallback(t *testing.T) {
	landingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>no links here</p></body></html>"))
	}))
	defer landingSrv.Close()

	resolver := newTestResolver(t, landingSrv)
	target, err := url.Parse(landingSrv.URL + "/embed/stream-42.php")
	require.NoError(t, err)

	result := resolver.Resolve(context.Background(), target, nil)
	require.NotNil(t, result)
	assert.Equal(t, landingSrv.URL+"/embed/stream-42.php", result.URL.String())
	assert.Nil(t, result.Body, "a fallback carries no body; the caller must retry the fetch itself")
}

// TestResolveIframeChainHandshake drives the whole landing -> player ->
// iframe -> auth -> server-lookup chain against one fake origin and checks
// the composed mono.m3u8 URL and its fetch headers.
func TestResolveIframeChainHandshake(t *testing.T) {
	var srv *httptest.Server
	var authCalled, lookupCalled bool

	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	mux := http.NewServeMux()
	mux.HandleFunc("/watch/stream-42.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><a href="/cast/stream-42.php">Player 2</a></body></html>`)
	})
	mux.HandleFunc("/cast/stream-42.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><iframe src="/embed/42"></iframe></body></html>`)
	})
	mux.HandleFunc("/embed/42", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><script>
var channelKey = "premium42";
var a = "%s";
var b = "%s";
var c = "%s";
var d = "%s";
var e = "%s";
fetchWithRetry('/server_lookup.php?channel_id=');
var m3u8 = "https://" + "wss" + "new.newkso.ru/";
</script></html>`,
			b64(srv.URL), b64("/auth.php"), b64("1700000000"), b64("779"), b64("c2ln+/=="))
	})
	mux.HandleFunc("/auth.php", func(w http.ResponseWriter, r *http.Request) {
		authCalled = true
		assert.Equal(t, "premium42", r.URL.Query().Get("channel_id"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("ts"))
		assert.Equal(t, "779", r.URL.Query().Get("rnd"))
		assert.Equal(t, "c2ln+/==", r.URL.Query().Get("sig"))
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	mux.HandleFunc("/server_lookup.php", func(w http.ResponseWriter, r *http.Request) {
		lookupCalled = true
		assert.Equal(t, "premium42", r.URL.Query().Get("channel_id"))
		fmt.Fprint(w, `{"server_key":"top1"}`)
	})

	srv = httptest.NewServer(mux)
	defer srv.Close()

	resolver := newTestResolver(t, srv)
	target, err := url.Parse(srv.URL + "/watch/stream-42.php")
	require.NoError(t, err)

	result := resolver.Resolve(context.Background(), target, nil)
	require.NotNil(t, result)

	assert.True(t, authCalled, "the auth handshake must be performed")
	assert.True(t, lookupCalled, "the server lookup must be performed")
	assert.Equal(t, "https://top1new.newkso.ru/top1/premium42/mono.m3u8", result.URL.String())
	assert.Equal(t, srv.URL+"/", result.Headers["Referer"])
	assert.Equal(t, srv.URL, result.Headers["Origin"])
}

func TestResolveFallsBackWhenLandingFetchFails(t *testing.T) {
	landingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer landingSrv.Close()

	resolver := newTestResolver(t, landingSrv)
	target, err := url.Parse(landingSrv.URL + "/embed/stream-1.php")
	require.NoError(t, err)

	result := resolver.Resolve(context.Background(), target, map[string]string{"User-Agent": "x"})
	require.NotNil(t, result)
	assert.Equal(t, landingSrv.URL+"/embed/stream-1.php", result.URL.String())
	assert.Equal(t, "x", result.Headers["User-Agent"])
}
