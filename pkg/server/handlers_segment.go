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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelnet/hlsrelay/pkg/cache"
	"github.com/kestrelnet/hlsrelay/pkg/httperr"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// handleSegment implements GET /proxy/ts: stream a media segment through,
// tee-ing it into SegmentCache as it flows to the client. The body is never
// buffered in full ahead of the client; only the cache copy accumulates,
// and it is abandoned past MaxItemBytes while streaming continues.
func (s *Server) handleSegment(ctx *gin.Context) {
	target, ok := requireTargetURL(ctx)
	if !ok {
		return
	}
	headers := forwardedHeaders(ctx)
	key := cache.PlaylistKey(target.String(), headers)

	if seg, hit := s.caches.Segment.Get(key); hit {
		ctx.Data(http.StatusOK, "video/mp2t", seg.Body)
		return
	}

	res, err := s.client.Fetch(ctx.Request.Context(), target, headers)
	if err != nil {
		if seg, hit := s.caches.Segment.Get(key); hit {
			utils.DebugLog("segment fetch failed for %s, serving stale cache entry: %v", target, err)
			ctx.Data(http.StatusOK, "video/mp2t", seg.Body)
			return
		}
		var tagged *httperr.Error
		if errors.As(err, &tagged) && tagged.Kind == httperr.UpstreamUnreachable {
			writeError(ctx, httperr.Wrap(httperr.TransientSegment, "segment unavailable and no cached copy exists", tagged.Cause))
			return
		}
		writeError(ctx, err)
		return
	}
	defer res.Body.Close()

	ctx.Status(http.StatusOK)
	ctx.Header("Content-Type", "video/mp2t")
	w := ctx.Writer

	maxItemBytes := s.caches.Segment.MaxItemBytes()
	buf := make([]byte, 64*1024)
	var cached []byte
	cacheAbandoned := false

	for {
		select {
		case <-ctx.Request.Context().Done():
			return
		default:
		}

		n, rerr := res.Body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, werr := w.Write(chunk); werr != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			if !cacheAbandoned {
				if int64(len(cached)+n) > maxItemBytes {
					cacheAbandoned = true
					cached = nil
				} else {
					cached = append(cached, chunk...)
				}
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				utils.DebugLog("upstream segment read error for %s: %v", target, rerr)
				return
			}
			break
		}
	}

	if !cacheAbandoned && len(cached) > 0 {
		s.caches.Segment.Put(key, cached)
		go s.prefetchNextSegment(target, headers)
	}
}

var segmentSequencePattern = regexp.MustCompile(`(\d+)(\.\w+)$`)

// prefetchNextSegment guesses the segment that follows target by
// incrementing its trailing sequence number and warms the cache with it.
// Best-effort only: it runs detached from the triggering request, and any
// failure is dropped silently without caching anything.
func (s *Server) prefetchNextSegment(target *url.URL, headers map[string]string) {
	m := segmentSequencePattern.FindStringSubmatch(target.Path)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return
	}

	next := *target
	next.Path = target.Path[:len(target.Path)-len(m[0])] + fmt.Sprintf("%0*d", len(m[1]), n+1) + m[2]

	key := cache.PlaylistKey(next.String(), headers)
	if _, hit := s.caches.Segment.Get(key); hit {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := s.client.Fetch(ctx, &next, headers)
	if err != nil {
		utils.DebugLog("segment prefetch for %s skipped: %v", next.String(), err)
		return
	}
	defer res.Body.Close()

	maxItemBytes := s.caches.Segment.MaxItemBytes()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxItemBytes+1))
	if err != nil || int64(len(body)) > maxItemBytes {
		return
	}
	s.caches.Segment.Put(key, body)
}

// handleKey implements GET /proxy/key: fetch and cache a small AES-128 key.
func (s *Server) handleKey(ctx *gin.Context) {
	target, ok := requireTargetURL(ctx)
	if !ok {
		return
	}
	headers := forwardedHeaders(ctx)
	key := cache.PlaylistKey(target.String(), headers)

	if cached, hit := s.caches.Key.Get(key); hit {
		ctx.Data(http.StatusOK, "application/octet-stream", cached.Body)
		return
	}

	res, err := s.client.Fetch(ctx.Request.Context(), target, headers)
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		writeError(ctx, httperr.Wrap(httperr.UpstreamUnreachable, "reading upstream key body", err))
		return
	}

	s.caches.Key.Put(key, body)
	ctx.Data(http.StatusOK, "application/octet-stream", body)
}
