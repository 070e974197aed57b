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
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/kestrelnet/hlsrelay/pkg/headercodec"
	"github.com/kestrelnet/hlsrelay/pkg/httperr"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

// requireTargetURL extracts and parses the mandatory "url" query parameter.
// It aborts the request and returns ok=false when the parameter is missing
// or unparsable.
func requireTargetURL(ctx *gin.Context) (*url.URL, bool) {
	raw := ctx.Query("url")
	if raw == "" {
		writeError(ctx, httperr.New(httperr.ClientError, "missing required query parameter: url"))
		return nil, false
	}
	target, err := url.Parse(raw)
	if err != nil {
		writeError(ctx, httperr.Wrap(httperr.ClientError, "invalid url query parameter", err))
		return nil, false
	}
	return target, true
}

// forwardedHeaders decodes every h_<name>=<value> query parameter present
// on the inbound request.
func forwardedHeaders(ctx *gin.Context) headercodec.Headers {
	return headercodec.Decode(ctx.Request.URL.Query())
}

// writeError maps a tagged error to its response status/body. 5xx-class
// failures (upstream/resolution trouble, not caller mistakes) are also
// logged at error level; 4xx caller errors are common enough under normal
// operation that they'd just be noise.
func writeError(ctx *gin.Context, err error) {
	status, message := httperr.StatusAndMessage(err)
	if status >= http.StatusInternalServerError {
		utils.ErrorLog("%s %s -> %d: %s", ctx.Request.Method, ctx.Request.URL.Path, status, message)
	}
	ctx.String(status, message)
}
