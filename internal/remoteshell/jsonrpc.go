// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package remoteshell

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Well-known JSON-RPC 2.0 error codes, exactly as specified (spec §6).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// Error is the JSON-RPC 2.0 error object. Handlers returning an
// application-specific error must use a Code greater than CodeServerError
// (-32000); see NewApplicationError.
type Error struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message"`
	Data    any    `cbor:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("remoteshell: code %d: %s", e.Code, e.Message)
}

func newError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewApplicationError builds a handler-defined error. code must be
// greater than CodeServerError (-32000); codes at or below it are
// reserved for the envelope itself (spec §6: "custom codes must be >
// -32000"). A caller violating this gets CodeInternalError instead, so a
// malformed custom error can never masquerade as a reserved one.
func NewApplicationError(code int, message string) *Error {
	if code <= CodeServerError {
		return newError(CodeInternalError, fmt.Sprintf("invalid application error code %d: %s", code, message))
	}
	return newError(code, message)
}

// request is the JSON-RPC 2.0 request envelope, CBOR-encoded per spec.
// Params defers decoding until the handler knows the expected shape,
// mirroring encoding/json.RawMessage.
type request struct {
	JSONRPC string        `cbor:"jsonrpc"`
	ID      any           `cbor:"id"`
	Method  string        `cbor:"method"`
	Params  cbor.RawMessage `cbor:"params,omitempty"`
}

// response is the JSON-RPC 2.0 response envelope. Result and Err are
// mutually exclusive; exactly one is set on the wire.
type response struct {
	JSONRPC string `cbor:"jsonrpc"`
	ID      any    `cbor:"id"`
	Result  any    `cbor:"result,omitempty"`
	Err     *Error `cbor:"error,omitempty"`
}
