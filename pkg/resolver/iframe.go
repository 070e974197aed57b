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
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// findAnchorHrefByText walks the HTML tree for the first <a> whose
// rendered text contains needle (case-insensitive) and returns its href.
// Used to locate the "Player 2" anchor on a landing page.
func findAnchorHrefByText(body []byte, needle string) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	var href string
	found := false
	needle = strings.ToLower(needle)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			if strings.Contains(strings.ToLower(nodeText(n)), needle) {
				if v, ok := attr(n, "href"); ok {
					href = v
					found = true
					return
				}
			}
		}
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return href, found
}

// findFirstIframeSrc returns the src of the first <iframe> in body.
func findFirstIframeSrc(body []byte) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	var src string
	found := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "iframe" {
			if v, ok := attr(n, "src"); ok {
				src = v
				found = true
				return
			}
		}
		for c := n.FirstChild; c != nil && !found; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return src, found
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var channelKeyPattern = regexp.MustCompile(`(?:var|let|const)\s+channelKey\s*=\s*["']([^"']+)["']`)

// base64VarPattern, given a single-letter JS identifier, matches either
// `atob("...")`-wrapped or bare base64 literal assignment.
func base64VarPattern(ident string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?:var|let|const)\s+%s\s*=\s*(?:atob\()?["']([A-Za-z0-9+/=]+)["']\)?`, regexp.QuoteMeta(ident)))
}

var fetchWithRetryPattern = regexp.MustCompile(`fetchWithRetry\(\s*['"]([^'"]+)['"]`)
var quotedLiteralPattern = regexp.MustCompile(`["']([^"']*)["']`)

// authBundle is the six values extracted from the iframe body in step c.
type authBundle struct {
	channelKey string
	authHost   string
	authPath   string
	authTs     string
	authRnd    string
	authSig    string
}

// extractAuthBundle pulls the handshake values out of the iframe's script:
// channelKey is a literal, the other five are base64 blobs bound to JS
// identifiers a..e that decode to authHost, authPath, authTs, authRnd and
// authSig respectively.
func extractAuthBundle(iframeBody []byte) (authBundle, bool) {
	ckMatch := channelKeyPattern.FindSubmatch(iframeBody)
	if ckMatch == nil {
		return authBundle{}, false
	}

	decode := func(ident string) (string, bool) {
		m := base64VarPattern(ident).FindSubmatch(iframeBody)
		if m == nil {
			return "", false
		}
		decoded, err := base64.StdEncoding.DecodeString(string(m[1]))
		if err != nil {
			return "", false
		}
		return string(decoded), true
	}

	authHost, ok := decode("a")
	if !ok {
		return authBundle{}, false
	}
	authPath, ok := decode("b")
	if !ok {
		return authBundle{}, false
	}
	authTs, ok := decode("c")
	if !ok {
		return authBundle{}, false
	}
	authRnd, ok := decode("d")
	if !ok {
		return authBundle{}, false
	}
	authSig, ok := decode("e")
	if !ok {
		return authBundle{}, false
	}

	return authBundle{
		channelKey: string(ckMatch[1]),
		authHost:   authHost,
		authPath:   authPath,
		authTs:     authTs,
		authRnd:    authRnd,
		authSig:    authSig,
	}, true
}

// extractLookupPath implements step e's fetchWithRetry('...') extraction.
func extractLookupPath(iframeBody []byte) (string, bool) {
	m := fetchWithRetryPattern.FindSubmatch(iframeBody)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// extractHostFragment implements step f: the string between the third pair
// of quoted literals following "m3u8 =" in the iframe body.
func extractHostFragment(iframeBody []byte) (string, bool) {
	idx := bytes.Index(iframeBody, []byte("m3u8 ="))
	if idx < 0 {
		return "", false
	}
	rest := iframeBody[idx:]
	matches := quotedLiteralPattern.FindAllSubmatch(rest, -1)
	if len(matches) < 3 {
		return "", false
	}
	return string(matches[2][1]), true
}
