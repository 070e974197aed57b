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
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/kestrelnet/hlsrelay/pkg/headercodec"
	"github.com/kestrelnet/hlsrelay/pkg/upstream"
)

// MediaPlaylistMIME is the MIME type the media-playlist rewrite emits.
const MediaPlaylistMIME = "application/vnd.apple.mpegurl; charset=utf-8"

var extXKeyURIPattern = regexp.MustCompile(`URI="([^"]*)"`)

// RewriteMediaPlaylist rewrites segment references to /proxy/ts?... and AES
// key URIs to /proxy/key?..., resolving relative URLs against baseURL,
// which must be the response's final URL *after* redirects, never the
// request URL. headers is the exact forwarded-header set used to fetch the
// parent playlist; it is carried onto every rewritten child URL.
func RewriteMediaPlaylist(body string, baseURL *url.URL, headers headercodec.Headers, serverBaseURL string) (string, error) {
	headerParams := headercodec.Encode(headers)

	lines := strings.Split(body, "\n")
	out := make([]string, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		suffix := line[len(trimmed):]

		switch {
		case strings.HasPrefix(trimmed, "#EXT-X-KEY") && strings.Contains(trimmed, "URI="):
			rewritten, err := rewriteKeyLine(trimmed, baseURL, headerParams, serverBaseURL)
			if err != nil {
				out[i] = line
				continue
			}
			out[i] = rewritten + suffix

		case trimmed != "" && !strings.HasPrefix(trimmed, "#"):
			rewritten, err := rewriteSegmentLine(trimmed, baseURL, headerParams, serverBaseURL)
			if err != nil {
				out[i] = line
				continue
			}
			out[i] = rewritten + suffix

		default:
			out[i] = line
		}
	}

	return strings.Join(out, "\n"), nil
}

func rewriteSegmentLine(line string, baseURL *url.URL, headerParams, serverBaseURL string) (string, error) {
	abs, err := resolveAgainst(baseURL, line)
	if err != nil {
		return "", err
	}
	return buildRewrittenURL(serverBaseURL, "/proxy/ts", abs.String(), headerParams), nil
}

func rewriteKeyLine(line string, baseURL *url.URL, headerParams, serverBaseURL string) (string, error) {
	var outerErr error
	rewritten := extXKeyURIPattern.ReplaceAllStringFunc(line, func(match string) string {
		sub := extXKeyURIPattern.FindStringSubmatch(match)
		keyURI := sub[1]

		abs, err := resolveAgainst(baseURL, keyURI)
		if err != nil {
			outerErr = err
			return match
		}
		newURI := buildRewrittenURL(serverBaseURL, "/proxy/key", abs.String(), headerParams)
		return `URI="` + newURI + `"`
	})
	if outerErr != nil {
		return "", outerErr
	}
	return rewritten, nil
}

func resolveAgainst(base *url.URL, ref string) (*url.URL, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(parsed), nil
}

func buildRewrittenURL(serverBaseURL, path, target, headerParams string) string {
	u := serverBaseURL + path + "?url=" + url.QueryEscape(target)
	if headerParams != "" {
		u += "&" + headerParams
	}
	return u
}

// extVLCOptHeaderNames maps #EXTVLCOPT keys to the HTTP header they carry.
var extVLCOptHeaderNames = map[string]string{
	"http-user-agent": "User-Agent",
	"http-referer":    "Referer",
	"http-cookie":     "Cookie",
}

// IngestRewrite is the master-list ingest mode: it accumulates headers from
// #EXTHTTP/#EXTVLCOPT directives (applying to the next non-comment URL line
// only) and rewrites that URL line to /proxy/m3u?url=...&h_* with the
// double-encoded header tail. Hosts matched by the policy's no-proxy list
// are emitted unchanged.
func IngestRewrite(body string, policy *upstream.Policy, serverBaseURL string) string {
	lines := strings.Split(body, "\n")
	out := make([]string, len(lines))

	pending := make(headercodec.Headers)

	for i, line := range lines {
		trimmed := strings.TrimRight(line, "\r")

		switch {
		case strings.HasPrefix(trimmed, "#EXTHTTP:"):
			mergeEXTHTTP(pending, strings.TrimPrefix(trimmed, "#EXTHTTP:"))
			out[i] = line

		case strings.HasPrefix(trimmed, "#EXTVLCOPT:"):
			mergeEXTVLCOpt(pending, strings.TrimPrefix(trimmed, "#EXTVLCOPT:"))
			out[i] = line

		case trimmed != "" && !strings.HasPrefix(trimmed, "#"):
			rewritten, _ := rewriteIngestLine(trimmed, pending, policy, serverBaseURL)
			out[i] = rewritten
			pending = make(headercodec.Headers)

		default:
			out[i] = line
		}
	}

	return strings.Join(out, "\n")
}

func rewriteIngestLine(line string, headers headercodec.Headers, policy *upstream.Policy, serverBaseURL string) (string, bool) {
	target, err := url.Parse(line)
	if err != nil {
		return line, true
	}

	if policy != nil && policy.NoProxyPassthrough(target) {
		return line, true
	}

	encodedTarget := url.QueryEscape(line)
	tail := headercodec.EncodeDoubleForIngest(encodedTarget, headers)
	return serverBaseURL + "/proxy/m3u?" + tail, false
}

func mergeEXTHTTP(pending headercodec.Headers, jsonBody string) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonBody)), &fields); err != nil {
		return
	}
	for k, v := range fields {
		pending[k] = v
	}
}

func mergeEXTVLCOpt(pending headercodec.Headers, opts string) {
	for _, pair := range strings.Split(opts, ",") {
		pair = strings.TrimSpace(pair)
		idx := strings.Index(pair, "=")
		if idx < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(pair[:idx]))
		value := strings.TrimSpace(pair[idx+1:])

		if key == "http-header" {
			if hdrIdx := strings.Index(value, ":"); hdrIdx >= 0 {
				name := strings.TrimSpace(value[:hdrIdx])
				val := strings.TrimSpace(value[hdrIdx+1:])
				if name != "" {
					pending[name] = val
				}
			}
			continue
		}

		if headerName, ok := extVLCOptHeaderNames[key]; ok {
			pending[headerName] = value
		}
	}
}
