// Copyright 2026 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

const (
	CodeNoURL           = "no_url"
	CodeConnectionError = "connection_error"
	CodeException       = "exception"
)

// RemoteDisconnectMessage is the message used for all of the various
// ways in which a camera may drop a connection without responding.
const RemoteDisconnectMessage = "Remote end closed connection without response"

// ErrAttemptTimeout is the cause of a context that was canceled because
// a single attempt exceeded its timeout.
var ErrAttemptTimeout = errors.New("capture attempt timed out")

// HTTPStatusCode returns the error code used for an unsuccessful HTTP
// status.
func HTTPStatusCode(status int) string {
	return fmt.Sprintf("http_%d", status)
}

// Error is returned for all failed captures.
type Error struct {
	Code     string
	Message  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%v: %v (after %v attempts)", e.Code, e.Message, e.Attempts)
	}
	return fmt.Sprintf("%v: %v", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode returns the code for err, CodeException if err is not
// an *Error.
func ErrorCode(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeException
}

func isRemoteDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "server closed") || strings.Contains(msg, "connection reset")
}

// describe returns a human readable, stable, description of a
// transport error.
func describe(err error) string {
	if isRemoteDisconnect(err) {
		return RemoteDisconnectMessage
	}
	var ne net.Error
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return "Timed out waiting for camera"
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}
