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

// Package httperr maps the proxy's error taxonomy onto HTTP status codes and
// plain-text response bodies. Wrapped causes are annotated with their call
// site via pkg/utils so 5xx log lines point at the fetch path or handler
// that produced them.
package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// Kind identifies which bucket of the error taxonomy an error belongs to.
type Kind int

const (
	// ClientError is a missing/empty required query parameter.
	ClientError Kind = iota
	// PolicyDenied is a domain-restricted variant of /proxy/m3u called with
	// an out-of-policy URL.
	PolicyDenied
	// UpstreamUnreachable is a connect/timeout/DNS failure after retries.
	UpstreamUnreachable
	// UpstreamHTTP is a non-2xx status returned by the upstream.
	UpstreamHTTP
	// ResolutionFailed means the resolver could not produce any M3U8.
	ResolutionFailed
	// TransientSegment is a segment fetch failure with no cached fallback.
	TransientSegment
)

func (k Kind) status() int {
	switch k {
	case ClientError:
		return http.StatusBadRequest
	case PolicyDenied:
		return http.StatusForbidden
	case UpstreamUnreachable:
		return http.StatusBadGateway
	case UpstreamHTTP:
		return http.StatusInternalServerError
	case ResolutionFailed:
		return http.StatusInternalServerError
	case TransientSegment:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a taxonomy-tagged error carrying its own HTTP status.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code this error maps to.
func (e *Error) Status() int { return e.Kind.status() }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags cause with a Kind and message, annotating the cause with the
// file:line of Wrap's caller (ERROR_DETAIL_LEVEL controls how much detail
// is attached).
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: utils.ErrorWithCallerLocation(cause, 1)}
}

// StatusAndMessage extracts the response status and user-visible plain-text
// body for any error. The body is cut at the first newline so an operator
// running ERROR_DETAIL_LEVEL=full never leaks a stack trace into a
// response; errors not tagged with Kind are treated as internal failures.
func StatusAndMessage(err error) (int, string) {
	status := http.StatusInternalServerError
	var tagged *Error
	if errors.As(err, &tagged) {
		status = tagged.Status()
	}

	message := err.Error()
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		message = message[:idx]
	}
	return status, message
}
