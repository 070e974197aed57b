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

// Package server wires the upstream policy, outbound client, caches and
// resolver into the four proxy endpoints plus the liveness/observability
// routes.
package server

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kestrelnet/hlsrelay/pkg/cache"
	"github.com/kestrelnet/hlsrelay/pkg/config"
	"github.com/kestrelnet/hlsrelay/pkg/resolver"
	"github.com/kestrelnet/hlsrelay/pkg/upstream"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// Server holds every component a request handler needs.
type Server struct {
	conf *config.ProxyConfig

	policy   *upstream.Policy
	client   *upstream.Client
	resolver *resolver.Resolver
	caches   *cache.Manager
}

// New builds a Server and its component graph from conf. It performs no I/O
// itself; the cache sweeper goroutines start at construction, and the
// resolver's LandingBase refresh runs inline on its first use.
func New(conf *config.ProxyConfig) (*Server, error) {
	if conf.HostConfig == nil {
		conf.HostConfig = &config.HostConfiguration{Port: 8080}
	}

	policy := upstream.NewPolicy(conf)
	client := upstream.NewClient(conf, policy)

	caches := cache.NewManager(
		cache.NewPlaylistCache(conf.PlaylistCacheTTL, conf.PlaylistCacheCapacity),
		cache.NewSegmentCache(conf.SegmentCacheMaxItems, conf.SegmentCacheMaxTotalBytes, conf.SegmentCacheMaxItemBytes),
		cache.NewKeyCache(conf.KeyCacheCapacity),
	)

	return &Server{
		conf:     conf,
		policy:   policy,
		client:   client,
		resolver: resolver.New(client, conf),
		caches:   caches,
	}, nil
}

// Serve starts the gin engine and blocks until it exits.
func (s *Server) Serve() error {
	if config.DebugLoggingEnabled {
		utils.Config.DebugLoggingEnabled = true
		utils.Config.LogLevel = utils.LevelDebug
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger())
	router.Use(cors.Default())

	s.routes(router)

	addr := fmt.Sprintf("%s:%d", s.conf.HostConfig.Hostname, s.conf.HostConfig.Port)
	utils.InfoLog("hlsrelay listening on %s", addr)
	return router.Run(addr)
}
