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

// Package resolver turns a landing URL into a concrete .m3u8 URL plus the
// headers required to fetch it. It never fails loudly: any step of the
// iframe-chain handshake that cannot be completed falls back to returning
// the cleaned input URL with the caller's own headers, leaving the caller
// to attempt a direct fetch.
package resolver

import (
	"context"
	"encoding/json"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/kestrelnet/hlsrelay/pkg/config"
	"github.com/kestrelnet/hlsrelay/pkg/upstream"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// Result is what Resolve returns: the URL the caller should GET, the
// headers that GET must carry, and, when the resolver's own probe already
// received the playlist, its body so the caller does not fetch the same
// live document a second time.
type Result struct {
	URL     *url.URL
	Headers map[string]string
	Body    []byte
}

// Resolver decides how a landing URL becomes a playable stream URL.
type Resolver struct {
	client      *upstream.Client
	landingBase *landingBaseManager
}

func New(client *upstream.Client, conf *config.ProxyConfig) *Resolver {
	fallback := conf.LandingBaseURL
	if fallback == "" {
		fallback = config.DefaultLandingBase
	}
	return &Resolver{
		client:      client,
		landingBase: newLandingBaseManager(client, conf.LandingBaseDescriptorURL, fallback),
	}
}

// maxProbeBytes caps how much of the landing response Resolve reads: the
// iframe scrape only needs the head of an HTML page, and a playlist bigger
// than this is left for the caller to fetch rather than handed over
// truncated.
const maxProbeBytes int64 = 2 << 20

var (
	premiumMonoPattern = regexp.MustCompile(`(?i)/premium(\d+)/mono\.m3u8$`)
	ohaPlayPattern     = regexp.MustCompile(`(?i)oha\.to/play/(\d+)/index\.m3u8`)
	pureIntegerPattern = regexp.MustCompile(`^\d+$`)
	daddyLiveHosts     = []string{"daddylive.dad", "daddylive.sx", "thedaddy.to"}
)

// normalizeLandingURL collapses channel-id-only forms, premium/mono and
// oha.to/play patterns, and the DaddyLive host family to the canonical
// landing URL <landingBase>watch/stream-<id>.php.
// Returns the input unchanged (changed=false) when none of these match.
func normalizeLandingURL(raw, landingBase string) (normalized string, changed bool) {
	trimmed := strings.TrimSpace(raw)

	if m := premiumMonoPattern.FindStringSubmatch(trimmed); m != nil {
		return landingBase + "watch/stream-" + m[1] + ".php", true
	}
	if m := ohaPlayPattern.FindStringSubmatch(trimmed); m != nil {
		return landingBase + "watch/stream-" + m[1] + ".php", true
	}
	if pureIntegerPattern.MatchString(trimmed) {
		return landingBase + "watch/stream-" + trimmed + ".php", true
	}

	if parsed, err := url.Parse(trimmed); err == nil {
		host := strings.ToLower(parsed.Host)
		for _, h := range daddyLiveHosts {
			if strings.Contains(host, h) {
				id := strings.TrimPrefix(lastPathSegment(parsed.Path), "stream-")
				if id != "" {
					return landingBase + "watch/stream-" + id + ".php", true
				}
			}
		}
	}

	return trimmed, false
}

func lastPathSegment(p string) string {
	p = strings.Trim(p, "/")
	parts := strings.Split(p, "/")
	last := parts[len(parts)-1]
	// Strip a trailing file extension, e.g. "42.php" -> "42".
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}
	if last == "" {
		return ""
	}
	return last
}

func originOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}

// Resolve never returns an error: on any internal failure it falls back to
// the cleaned input URL with the headers it was given, so the caller can
// still attempt a direct fetch.
func (r *Resolver) Resolve(ctx context.Context, target *url.URL, headers map[string]string) *Result {
	base := r.landingBase.Get(ctx)

	normalized, _ := normalizeLandingURL(target.String(), base)
	landingURL, err := url.Parse(normalized)
	if err != nil {
		landingURL = target
	}

	fallback := &Result{URL: landingURL, Headers: headers}

	res, err := r.client.Fetch(ctx, landingURL, headers)
	if err != nil {
		utils.DebugLog("resolver: fetching landing url %s failed: %v", landingURL, err)
		return fallback
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxProbeBytes+1))
	res.Body.Close()
	if err != nil {
		return fallback
	}

	if strings.HasPrefix(strings.TrimSpace(string(body)), "#EXTM3U") {
		result := &Result{URL: res.FinalURL, Headers: headers}
		// Hand the probe body over unless the read limit truncated it, in
		// which case the caller re-fetches the full playlist itself.
		if int64(len(body)) <= maxProbeBytes {
			result.Body = body
		}
		return result
	}

	result, ok := r.iframeChain(ctx, res.FinalURL, body, headers)
	if !ok {
		utils.WarnLog("resolver: iframe-chain handshake failed for %s, falling back to direct fetch", landingURL)
		return fallback
	}
	return result
}

// iframeChain performs the player -> iframe -> auth -> server-lookup
// handshake and composes the final mono.m3u8 URL.
func (r *Resolver) iframeChain(ctx context.Context, landingURL *url.URL, landingBody []byte, headers map[string]string) (*Result, bool) {
	playerHref, ok := findAnchorHrefByText(landingBody, "player 2")
	if !ok {
		return nil, false
	}
	playerURL, err := url.Parse(playerHref)
	if err != nil {
		return nil, false
	}
	playerURL = landingURL.ResolveReference(playerURL)

	playerRes, err := r.client.Fetch(ctx, playerURL, headers)
	if err != nil {
		return nil, false
	}
	playerBody, err := io.ReadAll(io.LimitReader(playerRes.Body, 1<<20))
	playerRes.Body.Close()
	if err != nil {
		return nil, false
	}

	iframeSrc, ok := findFirstIframeSrc(playerBody)
	if !ok {
		return nil, false
	}
	iframeURL, err := url.Parse(iframeSrc)
	if err != nil {
		return nil, false
	}
	iframeURL = playerRes.FinalURL.ResolveReference(iframeURL)
	iframeOrigin := originOf(iframeURL)

	iframeHeaders := map[string]string{
		"User-Agent": pickUserAgent(headers),
		"Referer":    iframeOrigin + "/",
		"Origin":     iframeOrigin,
	}

	iframeRes, err := r.client.Fetch(ctx, iframeURL, iframeHeaders)
	if err != nil {
		return nil, false
	}
	iframeBody, err := io.ReadAll(io.LimitReader(iframeRes.Body, 1<<20))
	iframeRes.Body.Close()
	if err != nil {
		return nil, false
	}

	bundle, ok := extractAuthBundle(iframeBody)
	if !ok {
		return nil, false
	}

	// authHost usually decodes with its own scheme; sig is percent-encoded
	// exactly once, the same way the auth endpoint expects it.
	authBase := bundle.authHost
	if !strings.HasPrefix(authBase, "http://") && !strings.HasPrefix(authBase, "https://") {
		authBase = "https://" + authBase
	}
	authURL, err := url.Parse(authBase + bundle.authPath +
		"?channel_id=" + url.QueryEscape(bundle.channelKey) +
		"&ts=" + url.QueryEscape(bundle.authTs) +
		"&rnd=" + url.QueryEscape(bundle.authRnd) +
		"&sig=" + url.QueryEscape(bundle.authSig))
	if err != nil {
		return nil, false
	}

	authRes, err := r.client.Fetch(ctx, authURL, iframeHeaders)
	if err != nil {
		return nil, false
	}
	authRes.Body.Close()
	if authRes.Status < 200 || authRes.Status >= 300 {
		return nil, false
	}

	lookupPath, ok := extractLookupPath(iframeBody)
	if !ok {
		return nil, false
	}
	lookupURL, err := url.Parse(iframeOrigin + lookupPath + bundle.channelKey)
	if err != nil {
		return nil, false
	}

	lookupRes, err := r.client.Fetch(ctx, lookupURL, iframeHeaders)
	if err != nil {
		return nil, false
	}
	lookupBody, err := io.ReadAll(io.LimitReader(lookupRes.Body, 1<<16))
	lookupRes.Body.Close()
	if err != nil {
		return nil, false
	}

	var lookupJSON struct {
		ServerKey string `json:"server_key"`
	}
	if err := json.Unmarshal(lookupBody, &lookupJSON); err != nil || lookupJSON.ServerKey == "" {
		return nil, false
	}

	hostFragment, ok := extractHostFragment(iframeBody)
	if !ok {
		return nil, false
	}

	finalURLStr := "https://" + lookupJSON.ServerKey + hostFragment + lookupJSON.ServerKey + "/" + bundle.channelKey + "/mono.m3u8"
	finalURL, err := url.Parse(finalURLStr)
	if err != nil {
		return nil, false
	}

	return &Result{
		URL: finalURL,
		Headers: map[string]string{
			"User-Agent": iframeHeaders["User-Agent"],
			"Referer":    iframeOrigin + "/",
			"Origin":     iframeOrigin,
		},
	}, true
}

func pickUserAgent(headers map[string]string) string {
	if ua, ok := headers["User-Agent"]; ok && ua != "" {
		return ua
	}
	return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
}
