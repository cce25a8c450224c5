// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package ggerr defines the signed error-code vocabulary shared by every
// core component, matching the category table in the design spec: success
// is always code 0, and every other code belongs to exactly one category
// (transient, parameter, format, resource, protocol, fatal-loop).
package ggerr

import "fmt"

// Code is a signed integer result code. Zero is always success.
type Code int32

// Success is the zero value returned by every operation that did not fail.
const Success Code = 0

// Category classifies a Code for dispatch by callers that want to react
// generically (e.g. "retry on Transient", "surface on Parameter").
type Category int

const (
	CategoryNone Category = iota
	CategoryTransient
	CategoryParameter
	CategoryFormat
	CategoryResource
	CategoryProtocol
	CategoryFatal
)

// Well-known codes, numbered in the category blocks the original design
// notes group them into. Values are process-internal, with one exception:
// the DTLS element sends the code of a failed handshake to its peer inside
// an alert record.
const (
	WouldBlock       Code = -1
	Timeout          Code = -2
	InvalidParameters Code = -10
	OutOfRange       Code = -11
	InvalidFormat    Code = -20
	InvalidSyntax    Code = -21
	OutOfMemory      Code = -30
	OutOfResources   Code = -31
	TLSError         Code = -40
	UnknownIdentity  Code = -41
	UnexpectedPSN    Code = -42
	Interrupted      Code = -50
)

var categories = map[Code]Category{
	WouldBlock:        CategoryTransient,
	Timeout:           CategoryTransient,
	InvalidParameters: CategoryParameter,
	OutOfRange:        CategoryParameter,
	InvalidFormat:     CategoryFormat,
	InvalidSyntax:     CategoryFormat,
	OutOfMemory:       CategoryResource,
	OutOfResources:    CategoryResource,
	TLSError:          CategoryProtocol,
	UnknownIdentity:   CategoryProtocol,
	UnexpectedPSN:     CategoryProtocol,
	Interrupted:       CategoryFatal,
}

// CategoryOf reports which category a code belongs to. Unknown negative
// codes report CategoryNone so callers can fall back to generic handling.
func CategoryOf(c Code) Category {
	if c == Success {
		return CategoryNone
	}
	return categories[c]
}

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case WouldBlock:
		return "WOULD_BLOCK"
	case Timeout:
		return "TIMEOUT"
	case InvalidParameters:
		return "INVALID_PARAMETERS"
	case OutOfRange:
		return "OUT_OF_RANGE"
	case InvalidFormat:
		return "INVALID_FORMAT"
	case InvalidSyntax:
		return "INVALID_SYNTAX"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case OutOfResources:
		return "OUT_OF_RESOURCES"
	case TLSError:
		return "TLS_ERROR"
	case UnknownIdentity:
		return "UNKNOWN_IDENTITY"
	case UnexpectedPSN:
		return "GATTLINK_UNEXPECTED_PSN"
	case Interrupted:
		return "INTERRUPTED"
	default:
		return fmt.Sprintf("CODE(%d)", int32(c))
	}
}

// Error wraps a Code with the operation that produced it and, optionally,
// an underlying cause. It satisfies error and supports errors.Is/As via Unwrap.
type Error struct {
	Op   string
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error for op/code with no wrapped cause.
func New(op string, code Code) *Error {
	return &Error{Op: op, Code: code}
}

// Wrap builds an *Error for op/code wrapping an underlying cause.
func Wrap(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// Is reports whether err carries the given Code, unwrapping *Error chains.
func Is(err error, code Code) bool {
	for err != nil {
		if ge, ok := err.(*Error); ok {
			if ge.Code == code {
				return true
			}
			err = ge.Err
			continue
		}
		return false
	}
	return false
}
