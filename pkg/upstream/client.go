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

// Package upstream provides a shared, pooled outbound HTTP client with
// per-destination proxy/TLS behaviour, streaming-capable and carrying its
// own retry ladder, plus the policy table that decides that behaviour.
package upstream

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kestrelnet/hlsrelay/pkg/config"
	"github.com/kestrelnet/hlsrelay/pkg/httperr"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

const maxRedirects = 5

// FetchResult is what Fetch returns on a successful round-trip to upstream.
// Body is exclusively owned by the caller and must be closed.
type FetchResult struct {
	FinalURL *url.URL
	Status   int
	Header   http.Header
	Body     io.ReadCloser
}

// Client is the pooled outbound HTTP client. Transports are cached per
// (proxy, verifyTLS, connect timeout, read timeout) combination so
// connection pooling survives across requests to the same policy bucket.
type Client struct {
	policy         *Policy
	connectTimeout time.Duration
	readTimeout    time.Duration

	mu         sync.Mutex
	transports map[string]*http.Transport
}

func NewClient(conf *config.ProxyConfig, policy *Policy) *Client {
	timeout := conf.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		policy:         policy,
		connectTimeout: timeout,
		readTimeout:    timeout,
		transports:     make(map[string]*http.Transport),
	}
}

func (c *Client) transportFor(decision Decision, connectTimeout, readTimeout time.Duration) (*http.Transport, error) {
	key := fmt.Sprintf("%s|%v|%s|%s", decision.Proxy, decision.VerifyTLS, connectTimeout, readTimeout)

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transports[key]; ok {
		return t, nil
	}

	t, err := transportForProxy(decision.Proxy, connectTimeout)
	if err != nil {
		return nil, err
	}
	t.ResponseHeaderTimeout = readTimeout
	if !decision.VerifyTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // nolint:gosec
	}

	c.transports[key] = t
	return t, nil
}

// Fetch performs the GET, following redirects (capped at maxRedirects). It
// makes up to three attempts in all, retrying on any transport error
// (timeouts included) with progressively larger connect/read budgets, and
// stops early once ctx is done. Non-2xx is surfaced without retry. headers are merged on
// top of the Upstream Policy's default headers for target's host.
func (c *Client) Fetch(ctx context.Context, target *url.URL, headers map[string]string) (*FetchResult, error) {
	decision := c.policy.Resolve(target)

	effectiveHeaders := make(map[string]string, len(decision.DefaultHeaders)+len(headers))
	for k, v := range decision.DefaultHeaders {
		effectiveHeaders[k] = v
	}
	for k, v := range headers {
		effectiveHeaders[k] = v
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		budgetMultiplier := time.Duration(1 + attempt)
		transport, err := c.transportFor(decision, c.connectTimeout*budgetMultiplier, c.readTimeout*budgetMultiplier)
		if err != nil {
			return nil, httperr.Wrap(httperr.UpstreamUnreachable, "building upstream transport", err)
		}

		httpClient := &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
		if err != nil {
			return nil, httperr.Wrap(httperr.ClientError, "building upstream request", err)
		}
		for k, v := range effectiveHeaders {
			req.Header.Set(k, v)
			logged := v
			if utils.IsSensitiveHeader(k) {
				logged = utils.MaskString(v)
			}
			utils.DebugLog("upstream %s: set header %s=%s", target, k, logged)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			utils.DebugLog("upstream attempt %d for %s failed: %v", attempt+1, target, err)
			if ctx.Err() != nil {
				break
			}
			time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, httperr.New(httperr.UpstreamHTTP, fmt.Sprintf("upstream %s returned %d: %s", target, resp.StatusCode, string(body)))
		}

		return &FetchResult{
			FinalURL: resp.Request.URL,
			Status:   resp.StatusCode,
			Header:   resp.Header,
			Body:     resp.Body,
		}, nil
	}

	return nil, httperr.Wrap(httperr.UpstreamUnreachable, fmt.Sprintf("upstream %s unreachable after retries", target), lastErr)
}
