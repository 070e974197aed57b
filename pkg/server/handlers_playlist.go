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

package server

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jamesnetherton/m3u"
	uuid "github.com/satori/go.uuid"

	"github.com/kestrelnet/hlsrelay/pkg/cache"
	"github.com/kestrelnet/hlsrelay/pkg/httperr"
	"github.com/kestrelnet/hlsrelay/pkg/playlist"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// handleIngest implements GET /proxy: fetch a published channel list and
// rewrite every top-level URL through this proxy.
func (s *Server) handleIngest(ctx *gin.Context) {
	target, ok := requireTargetURL(ctx)
	if !ok {
		return
	}
	headers := forwardedHeaders(ctx)

	res, err := s.client.Fetch(ctx.Request.Context(), target, headers)
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		writeError(ctx, httperr.Wrap(httperr.UpstreamUnreachable, "reading upstream body", err))
		return
	}

	logTrackCount(string(body))

	rewritten := playlist.IngestRewrite(string(body), s.policy, s.conf.ServerBaseURL)

	filename := path.Base(target.Path)
	if filename == "" || filename == "." || filename == "/" {
		filename = "playlist.m3u"
	}
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	ctx.Data(http.StatusOK, playlist.MediaPlaylistMIME, []byte(rewritten))
}

// logTrackCount runs jamesnetherton/m3u's own parser over the ingested body
// purely for an observability line; a parse failure here is expected for
// payloads this parser doesn't fully understand and must never affect the
// response, so it is logged at debug level and discarded. The scratch file
// is named with a random UUID so two concurrent ingests never collide on
// the same path.
func logTrackCount(body string) {
	if !utils.Config.DebugLoggingEnabled {
		return
	}
	path := filepath.Join(os.TempDir(), uuid.NewV4().String()+".hlsrelay-ingest.m3u")
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer os.Remove(path)
	defer f.Close()

	if _, err := f.WriteString(body); err != nil {
		return
	}
	if err := f.Sync(); err != nil {
		return
	}

	p, err := m3u.Parse(path)
	if err != nil {
		utils.DebugLog("ingest: m3u structural parse failed (non-fatal): %v", err)
		return
	}
	utils.DebugLog("ingest: parsed %d tracks from published list", len(p.Tracks))
}

// hostAllowed implements the optional domain-restricted mode of /proxy/m3u.
// An empty allowlist means unrestricted, the default; otherwise the
// target's host must contain one of the configured substrings, the same
// matching style as the upstream policy table.
func hostAllowed(target *url.URL, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host := strings.ToLower(target.Host)
	for _, h := range allowed {
		if strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

// handleMediaPlaylist implements GET /proxy/m3u: resolve the target, fetch
// the media playlist it points to, and rewrite every segment/key reference
// through this proxy.
func (s *Server) handleMediaPlaylist(ctx *gin.Context) {
	target, ok := requireTargetURL(ctx)
	if !ok {
		return
	}

	if !hostAllowed(target, s.conf.AllowedHosts) {
		writeError(ctx, httperr.New(httperr.PolicyDenied, "target host is not in the allowed-hosts policy"))
		return
	}

	headers := forwardedHeaders(ctx)

	key := cache.PlaylistKey(target.String(), headers)
	if entry, hit := s.caches.Playlist.Get(key); hit {
		ctx.Data(http.StatusOK, entry.ContentType, []byte(entry.Body))
		return
	}

	resolved := s.resolver.Resolve(ctx.Request.Context(), target, headers)

	fetchHeaders := headers
	if resolved.Headers != nil {
		fetchHeaders = resolved.Headers
	}

	// The resolver's direct-M3U8 probe already read the playlist; re-fetching
	// a live document could observe a different window of segments.
	body := resolved.Body
	finalURL := resolved.URL
	if body == nil {
		res, err := s.client.Fetch(ctx.Request.Context(), resolved.URL, fetchHeaders)
		if err != nil {
			writeError(ctx, err)
			return
		}
		defer res.Body.Close()

		body, err = io.ReadAll(res.Body)
		if err != nil {
			writeError(ctx, httperr.Wrap(httperr.UpstreamUnreachable, "reading upstream body", err))
			return
		}
		finalURL = res.FinalURL
	}

	if !strings.HasPrefix(strings.TrimSpace(string(body)), "#EXTM3U") {
		writeError(ctx, httperr.New(httperr.ResolutionFailed, "resolved content is not an HLS playlist"))
		return
	}

	// A plain list without #EXTINF is the caller's own channel list, not a
	// media playlist; it is passed through unrewritten.
	if playlist.Detect(string(body)) == playlist.KindM3U {
		s.caches.Playlist.Put(key, cache.PlaylistEntry{Body: string(body), ContentType: playlist.MediaPlaylistMIME})
		ctx.Data(http.StatusOK, playlist.MediaPlaylistMIME, body)
		return
	}

	// Rewritten child URLs carry the header set that actually fetched this
	// playlist, which is the resolver's set when the iframe chain produced
	// one; intermediate proxies must be able to repeat the identical
	// upstream request.
	rewritten, err := playlist.RewriteMediaPlaylist(string(body), finalURL, fetchHeaders, s.conf.ServerBaseURL)
	if err != nil {
		writeError(ctx, httperr.Wrap(httperr.ResolutionFailed, "rewriting media playlist", err))
		return
	}

	s.caches.Playlist.Put(key, cache.PlaylistEntry{Body: rewritten, ContentType: playlist.MediaPlaylistMIME})
	ctx.Data(http.StatusOK, playlist.MediaPlaylistMIME, []byte(rewritten))
}
