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

import "github.com/gin-gonic/gin"

// routes registers the proxy's endpoint surface.
func (s *Server) routes(router *gin.Engine) {
	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)

	router.GET("/proxy", s.handleIngest)
	router.GET("/proxy/m3u", s.handleMediaPlaylist)
	router.GET("/proxy/ts", s.handleSegment)
	router.GET("/proxy/key", s.handleKey)

	router.GET("/cache/stats", s.handleCacheStats)
	router.GET("/cache/clear", s.handleCacheClear)
}
