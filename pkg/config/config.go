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

// Package config holds the process-wide configuration surface: everything
// bound from flags/env by cmd/root.go and consumed by pkg/server,
// pkg/upstream and pkg/cache. It deliberately carries no behaviour.
package config

import (
	"strings"
	"time"
)

// DebugLoggingEnabled is set by cmd/root.go from --debug-logging.
// pkg/utils does not read it; Server.Serve copies it into utils.Config.
var DebugLoggingEnabled bool

// HostConfiguration is where the server listens. Rewritten absolute URLs
// are built from ProxyConfig.ServerBaseURL, not from these fields.
type HostConfiguration struct {
	Hostname string
	Port     int
}

// ProxyPolicyRule is one row of the Upstream Policy table: a hostname
// substring match plus the proxy/TLS/header behaviour that applies when it
// hits.
type ProxyPolicyRule struct {
	// HostContains is matched case-insensitively against the upstream URL's
	// host. Rules with an empty value are skipped; the general fallback
	// comes from GeneralProxy/VerifySSL, not from a rule.
	HostContains string
	Proxies      []string // comma-separated list source; one is chosen at random per request
	VerifyTLS    bool
	Headers      map[string]string
}

// ProxyConfig is the single configuration object threaded through
// pkg/server, pkg/upstream and pkg/cache at construction time.
type ProxyConfig struct {
	HostConfig *HostConfiguration

	// ServerBaseURL is prefixed onto every rewritten absolute URL the
	// playlist rewriter emits.
	ServerBaseURL string

	// General upstream behaviour.
	VerifySSL      bool
	RequestTimeout time.Duration
	GeneralProxy   []string
	Socks5Proxy    []string
	HTTPProxy      []string
	HTTPSProxy     []string

	// NoProxyHosts are host substrings emitted unchanged by the ingest
	// rewriter; pluto.tv-style upstreams need no proxying at all.
	NoProxyHosts []string

	// AllowedHosts, when non-empty, restricts /proxy/m3u to target URLs
	// whose host contains one of these substrings; any other host is
	// rejected with PolicyDenied. Empty means unrestricted, the default.
	AllowedHosts []string

	// PolicyRules are the domain-scoped overrides consulted before
	// GeneralProxy/VerifySSL.
	PolicyRules []ProxyPolicyRule

	// Cache tuning.
	PlaylistCacheTTL          time.Duration
	PlaylistCacheCapacity     int
	SegmentCacheMaxItems      int
	SegmentCacheMaxTotalBytes int64
	SegmentCacheMaxItemBytes  int64
	KeyCacheCapacity          int

	// LandingBaseURL is the compiled-in fallback for the resolver's hourly
	// refresh.
	LandingBaseURL           string
	LandingBaseDescriptorURL string
}

// DefaultNoProxyHosts is the compiled-in fallback list; pluto.tv is the
// only host exempted from proxying out of the box.
var DefaultNoProxyHosts = []string{"pluto.tv"}

// DefaultLandingBase is used until the first successful hourly refresh.
const DefaultLandingBase = "https://daddylive.example/"

// SplitCSV splits a comma-separated env/flag value into a trimmed,
// non-empty slice. Used for GENERAL_PROXY/SOCKS5_PROXY/HTTP_PROXY/
// HTTPS_PROXY and for NoProxyHosts.
func SplitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DefaultPolicyRules returns the built-in domain-scoped overrides
// (newkso-family hosts, vavoo.to, oha.to). cmd/root.go uses this table
// as-is; no flag or config-file key adds rules to it.
func DefaultPolicyRules() []ProxyPolicyRule {
	return []ProxyPolicyRule{
		{
			HostContains: "newkso",
			VerifyTLS:    false,
			Headers: map[string]string{
				"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			},
		},
		{
			HostContains: "vavoo.to",
			VerifyTLS:    false,
			Headers: map[string]string{
				"User-Agent": "VAVOO/2.6",
			},
		},
		{
			HostContains: "oha.to",
			VerifyTLS:    true,
			Headers: map[string]string{
				"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
				"Referer":    "https://oha.to/",
				"Origin":     "https://oha.to",
			},
		},
	}
}
