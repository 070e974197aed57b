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

package upstream

import (
	"math/rand"
	"net/url"
	"strings"

	"github.com/kestrelnet/hlsrelay/pkg/config"
)

// Decision is what the Upstream Policy resolves a target URL to.
type Decision struct {
	Proxy          string // empty means direct, no outbound proxy
	VerifyTLS      bool
	DefaultHeaders map[string]string
}

// Policy maps upstream URLs to outbound-proxy/TLS-verify/header behaviour.
// It is immutable after construction so it is safe for concurrent use
// without locking.
type Policy struct {
	rules        []config.ProxyPolicyRule
	generalProxy []string
	verifySSL    bool
	noProxyHosts []string
}

func NewPolicy(conf *config.ProxyConfig) *Policy {
	// GENERAL_PROXY, SOCKS5_PROXY, HTTP_PROXY and HTTPS_PROXY all feed the
	// same general-fallback candidate pool: each entry carries its
	// own scheme (http://, https://, socks5://, socks5h://) and
	// transportForProxy dispatches on that, so there is nothing
	// protocol-specific left to decide here beyond "which string do we pick".
	general := make([]string, 0, len(conf.GeneralProxy)+len(conf.Socks5Proxy)+len(conf.HTTPProxy)+len(conf.HTTPSProxy))
	general = append(general, conf.GeneralProxy...)
	general = append(general, conf.Socks5Proxy...)
	general = append(general, conf.HTTPProxy...)
	general = append(general, conf.HTTPSProxy...)

	return &Policy{
		rules:        conf.PolicyRules,
		generalProxy: general,
		verifySSL:    conf.VerifySSL,
		noProxyHosts: conf.NoProxyHosts,
	}
}

// Resolve returns the outbound behaviour for a target URL. GitHub hosts are
// always excluded from the proxy path; the resolver needs direct access
// there for its LandingBase descriptor fetch.
func (p *Policy) Resolve(target *url.URL) Decision {
	host := strings.ToLower(target.Host)

	if strings.Contains(host, "github.com") || strings.Contains(host, "githubusercontent.com") {
		return Decision{
			VerifyTLS: true,
			DefaultHeaders: map[string]string{
				"User-Agent": "hlsrelay",
			},
		}
	}

	for _, rule := range p.rules {
		if rule.HostContains == "" {
			continue
		}
		if strings.Contains(host, strings.ToLower(rule.HostContains)) {
			return Decision{
				Proxy:          pickProxy(rule.Proxies),
				VerifyTLS:      rule.VerifyTLS,
				DefaultHeaders: withOriginDefaults(rule.Headers, target),
			}
		}
	}

	return Decision{
		Proxy:          pickProxy(p.generalProxy),
		VerifyTLS:      p.verifySSL,
		DefaultHeaders: withOriginDefaults(nil, target),
	}
}

// NoProxyPassthrough reports whether target must be emitted unchanged by
// the ingest rewriter (the generalised pluto.tv exception).
func (p *Policy) NoProxyPassthrough(target *url.URL) bool {
	host := strings.ToLower(target.Host)
	for _, h := range p.noProxyHosts {
		if strings.Contains(host, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func withOriginDefaults(base map[string]string, target *url.URL) map[string]string {
	headers := map[string]string{
		"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	}
	if target != nil {
		origin := target.Scheme + "://" + target.Host
		headers["Referer"] = origin + "/"
		headers["Origin"] = origin
	}
	for k, v := range base {
		headers[k] = v
	}
	return headers
}

// pickProxy chooses one entry uniformly at random from a comma-separated
// proxy list; there is no stickiness between requests.
func pickProxy(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	return candidates[rand.Intn(len(candidates))]
}
