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
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleRoot(ctx *gin.Context) {
	ctx.String(http.StatusOK, "hlsrelay is running.\nSee /health, /cache/stats and /proxy, /proxy/m3u, /proxy/ts, /proxy/key.\n")
}

func (s *Server) handleCacheStats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, s.caches.Stats())
}

func (s *Server) handleCacheClear(ctx *gin.Context) {
	s.caches.Clear()
	ctx.String(http.StatusOK, "caches cleared\n")
}
