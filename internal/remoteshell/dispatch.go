// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

package remoteshell

import (
	"context"

	"github.com/fxamacker/cbor/v2"
)

const jsonrpcVersion = "2.0"

// Dispatch decodes one CBOR-encoded JSON-RPC 2.0 request, routes it
// through r's registered handlers, and returns the CBOR-encoded response
// (spec §6). It never returns an error itself: any failure along the way
// becomes a JSON-RPC error response, per the envelope's own contract.
func (r *Registry) Dispatch(ctx context.Context, cborPayload []byte) (cborResponse []byte) {
	var req request
	if err := cbor.Unmarshal(cborPayload, &req); err != nil {
		return r.encode(response{
			JSONRPC: jsonrpcVersion,
			ID:      nil,
			Err:     newError(CodeParseError, "malformed CBOR payload"),
		})
	}

	if req.JSONRPC != jsonrpcVersion || req.Method == "" {
		return r.encode(response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Err:     newError(CodeInvalidRequest, "missing jsonrpc version or method"),
		})
	}

	handler, ok := r.lookup(req.Method)
	if !ok {
		return r.encode(response{
			JSONRPC: jsonrpcVersion,
			ID:      req.ID,
			Err:     newError(CodeMethodNotFound, "unknown method: "+req.Method),
		})
	}

	result, callErr := handler(ctx, req.Params)
	if callErr != nil {
		if r.log != nil {
			r.log.Debug("remoteshell: handler returned error", "method", req.Method, "code", callErr.Code, "message", callErr.Message)
		}
		return r.encode(response{JSONRPC: jsonrpcVersion, ID: req.ID, Err: callErr})
	}

	// A nil result must still round-trip as null, per spec: encode
	// explicitly rather than letting "omitempty" drop the field.
	if result == nil {
		result = cbor.RawMessage(nilCBOR)
	}
	return r.encode(response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result})
}

// nilCBOR is the single-byte CBOR encoding of the null simple value.
var nilCBOR = []byte{0xf6}

func (r *Registry) encode(resp response) []byte {
	out, err := cbor.Marshal(resp)
	if err != nil {
		// Marshaling our own envelope failed: fall back to a minimal,
		// hand-built internal-error response rather than returning nothing.
		out, _ = cbor.Marshal(response{
			JSONRPC: jsonrpcVersion,
			ID:      resp.ID,
			Err:     newError(CodeInternalError, "failed to encode response"),
		})
	}
	return out
}
