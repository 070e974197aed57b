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
	"context"
	"errors"
	"io"
	"net/url"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kestrelnet/hlsrelay/pkg/upstream"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

var landingBaseSrcPattern = regexp.MustCompile(`src\s*=\s*["']([^"']+)["']`)

// landingBaseManager refreshes the resolver's LandingBase at most once per
// hour from a remote text descriptor, falling back to the last known good
// value (or the compiled-in default) on any failure. Concurrent callers
// during a stale window share one in-flight refresh via singleflight, never
// stampeding the descriptor URL.
type landingBaseManager struct {
	client *upstream.Client

	descriptorURL *url.URL
	fallback      string

	mu          sync.RWMutex
	current     string
	lastRefresh time.Time

	sf singleflight.Group
}

func newLandingBaseManager(client *upstream.Client, descriptorURLStr, fallback string) *landingBaseManager {
	m := &landingBaseManager{
		client:   client,
		fallback: fallback,
		current:  fallback,
	}
	if descriptorURLStr != "" {
		if parsed, err := url.Parse(descriptorURLStr); err == nil {
			m.descriptorURL = parsed
		}
	}
	return m
}

// Get returns the current LandingBase, first running a refresh if the last
// successful refresh is more than an hour old. The refresh runs in the
// calling goroutine; concurrent callers wait on the same in-flight refresh.
func (m *landingBaseManager) Get(ctx context.Context) string {
	m.mu.RLock()
	current := m.current
	stale := time.Since(m.lastRefresh) > time.Hour
	m.mu.RUnlock()

	if !stale || m.descriptorURL == nil {
		return current
	}

	v, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		utils.DebugLog("landing base refresh failed, reusing last known good value: %v", err)
		return current
	}
	return v.(string)
}

func (m *landingBaseManager) refresh(ctx context.Context) (string, error) {
	res, err := m.client.Fetch(ctx, m.descriptorURL, nil)
	if err != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.current, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8192))
	if err != nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.current, err
	}

	match := landingBaseSrcPattern.FindSubmatch(body)
	if match == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.current, errors.New("descriptor did not contain a src literal")
	}

	base := string(match[1])
	m.mu.Lock()
	m.current = base
	m.lastRefresh = time.Now()
	m.mu.Unlock()
	return base, nil
}
