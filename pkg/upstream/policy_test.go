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
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/hlsrelay/pkg/config"
)

func testConfig() *config.ProxyConfig {
	return &config.ProxyConfig{
		VerifySSL:    false,
		GeneralProxy: nil,
		NoProxyHosts: []string{"pluto.tv"},
		PolicyRules:  config.DefaultPolicyRules(),
	}
}

func TestPolicyGeneralFallback(t *testing.T) {
	p := NewPolicy(testConfig())
	u, err := url.Parse("https://example.com/live/chan.m3u8")
	require.NoError(t, err)

	d := p.Resolve(u)
	assert.Empty(t, d.Proxy)
	assert.False(t, d.VerifyTLS)
	assert.Equal(t, "https://example.com/", d.DefaultHeaders["Referer"])
}

func TestPolicyDomainScopedOverride(t *testing.T) {
	p := NewPolicy(testConfig())
	u, err := url.Parse("https://cdn1.newkso.ru/chan/index.m3u8")
	require.NoError(t, err)

	d := p.Resolve(u)
	assert.Contains(t, d.DefaultHeaders["User-Agent"], "Windows")
	assert.False(t, d.VerifyTLS)
}

func TestPolicyGitHubAlwaysDirect(t *testing.T) {
	conf := testConfig()
	conf.GeneralProxy = []string{"socks5://proxy.example:1080"}
	p := NewPolicy(conf)

	u, err := url.Parse("https://raw.githubusercontent.com/owner/repo/main/base.txt")
	require.NoError(t, err)

	d := p.Resolve(u)
	assert.Empty(t, d.Proxy, "github hosts must bypass the outbound proxy unconditionally")
	assert.True(t, d.VerifyTLS)
}

func TestPolicyNoProxyPassthrough(t *testing.T) {
	p := NewPolicy(testConfig())

	plutoURL, err := url.Parse("https://service.pluto.tv/v2/channels")
	require.NoError(t, err)
	assert.True(t, p.NoProxyPassthrough(plutoURL))

	otherURL, err := url.Parse("https://example.com/list.m3u")
	require.NoError(t, err)
	assert.False(t, p.NoProxyPassthrough(otherURL))
}

func TestPickProxyReturnsOnlyCandidateDeterministically(t *testing.T) {
	assert.Equal(t, "only", pickProxy([]string{"only"}))
	assert.Equal(t, "", pickProxy(nil))
}
