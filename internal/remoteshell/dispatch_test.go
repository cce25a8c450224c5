// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package remoteshell

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type echoParams struct {
	Text string `cbor:"text"`
}

func newTestRegistry() *Registry {
	r := NewRegistry(discardLogger())
	r.Register("echo", func(_ context.Context, params []byte) (any, *Error) {
		var p echoParams
		if len(params) > 0 {
			if err := cbor.Unmarshal(params, &p); err != nil {
				return nil, newError(CodeInvalidParams, "bad params")
			}
		}
		return p, nil
	})
	r.Register("boom", func(_ context.Context, _ []byte) (any, *Error) {
		return nil, NewApplicationError(-31999, "application failed")
	})
	r.Register("noop", func(_ context.Context, _ []byte) (any, *Error) {
		return nil, nil
	})
	return r
}

func encodeRequest(t *testing.T, req request) []byte {
	t.Helper()
	b, err := cbor.Marshal(req)
	require.NoError(t, err)
	return b
}

func decodeResponse(t *testing.T, b []byte) response {
	t.Helper()
	var resp response
	require.NoError(t, cbor.Unmarshal(b, &resp))
	return resp
}

func TestDispatchSuccess(t *testing.T) {
	r := newTestRegistry()
	params, err := cbor.Marshal(echoParams{Text: "hi"})
	require.NoError(t, err)
	reqBytes := encodeRequest(t, request{JSONRPC: "2.0", ID: float64(1), Method: "echo", Params: params})

	resp := decodeResponse(t, r.Dispatch(context.Background(), reqBytes))
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Nil(t, resp.Err)
	assert.NotNil(t, resp.Result)
}

func TestDispatchMethodNotFound(t *testing.T) {
	r := newTestRegistry()
	reqBytes := encodeRequest(t, request{JSONRPC: "2.0", ID: float64(2), Method: "nonexistent"})

	resp := decodeResponse(t, r.Dispatch(context.Background(), reqBytes))
	require.NotNil(t, resp.Err)
	assert.Equal(t, CodeMethodNotFound, resp.Err.Code)
}

func TestDispatchInvalidRequest(t *testing.T) {
	r := newTestRegistry()
	reqBytes := encodeRequest(t, request{JSONRPC: "1.0", ID: float64(3), Method: "echo"})

	resp := decodeResponse(t, r.Dispatch(context.Background(), reqBytes))
	require.NotNil(t, resp.Err)
	assert.Equal(t, CodeInvalidRequest, resp.Err.Code)
}

func TestDispatchParseError(t *testing.T) {
	r := newTestRegistry()
	resp := decodeResponse(t, r.Dispatch(context.Background(), []byte{0xff, 0xff, 0xff}))
	require.NotNil(t, resp.Err)
	assert.Equal(t, CodeParseError, resp.Err.Code)
}

func TestDispatchApplicationError(t *testing.T) {
	r := newTestRegistry()
	reqBytes := encodeRequest(t, request{JSONRPC: "2.0", ID: float64(4), Method: "boom"})

	resp := decodeResponse(t, r.Dispatch(context.Background(), reqBytes))
	require.NotNil(t, resp.Err)
	assert.Equal(t, -31999, resp.Err.Code)
}

func TestDispatchNilResultEncodesAsNull(t *testing.T) {
	r := newTestRegistry()
	reqBytes := encodeRequest(t, request{JSONRPC: "2.0", ID: float64(5), Method: "noop"})

	raw := r.Dispatch(context.Background(), reqBytes)
	var generic map[string]cbor.RawMessage
	require.NoError(t, cbor.Unmarshal(raw, &generic))
	var result any
	require.NoError(t, cbor.Unmarshal(generic["result"], &result))
	assert.Nil(t, result)
}

func TestNewApplicationErrorRejectsReservedCode(t *testing.T) {
	e := NewApplicationError(CodeServerError, "should be rejected")
	assert.Equal(t, CodeInternalError, e.Code)
}
