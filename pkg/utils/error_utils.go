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

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrorDetailLevel represents the level of error detail attached to wrapped
// errors
type ErrorDetailLevel int

const (
	// ErrorDetailNone leaves errors untouched
	ErrorDetailNone ErrorDetailLevel = iota
	// ErrorDetailSimple attaches file, line and function information (default)
	ErrorDetailSimple
	// ErrorDetailFull additionally attaches a stack trace
	ErrorDetailFull
)

// getErrorDetailLevel returns the configured error detail level from environment
func getErrorDetailLevel() ErrorDetailLevel {
	level := strings.ToLower(os.Getenv("ERROR_DETAIL_LEVEL"))
	switch level {
	case "none":
		return ErrorDetailNone
	case "full":
		return ErrorDetailFull
	default:
		return ErrorDetailSimple
	}
}

// ErrorWithLocation wraps err with the file:line and function of its caller,
// so upstream fetch and resolution failures keep pointing at the call site
// that produced them as they bubble up. Detail is controlled by
// ERROR_DETAIL_LEVEL (none, simple, full).
func ErrorWithLocation(err error) error {
	return errorWithLocation(err, 2)
}

// ErrorWithCallerLocation is ErrorWithLocation for wrapper packages: skip
// names how many frames sit between this call and the interesting call
// site, so the recorded location points at the handler or fetch path rather
// than at the wrapper itself.
func ErrorWithCallerLocation(err error, skip int) error {
	return errorWithLocation(err, skip+2)
}

func errorWithLocation(err error, skip int) error {
	if err == nil {
		return nil
	}

	level := getErrorDetailLevel()
	if level == ErrorDetailNone {
		return err
	}

	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return err
	}
	fnName := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		fnName = filepath.Base(fn.Name())
	}

	if level == ErrorDetailFull {
		buffer := make([]byte, 4096)
		n := runtime.Stack(buffer, false)
		return fmt.Errorf("%s:%d [%s]: %w\nStack Trace:\n%s",
			filepath.Base(file), line, fnName, err, buffer[:n])
	}

	return fmt.Errorf("%s:%d [%s]: %w", filepath.Base(file), line, fnName, err)
}
