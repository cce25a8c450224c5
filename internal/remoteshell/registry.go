// Copyright (c) 2025 Fitbit, Inc. All rights reserved.
// Use of this source code is governed by the Golden Gate License
// that can be found in the LICENSE file.

// Package remoteshell implements the CBOR/JSON-RPC 2.0 introspection
// shell the design spec describes as an external collaborator contract
// (spec §6): a method registry and dispatcher exercising the wire
// contract, fronting the stack instead of the CoAP transport the spec
// places out of scope (§4.L).
package remoteshell

import (
	"context"
	"log/slog"
	"sync"
)

// HandlerFunc handles one dispatched method call. params is the raw CBOR
// bytes of the request's "params" field (nil if the request omitted it);
// the handler decodes it itself since param shapes vary per method. The
// returned value is CBOR-encoded into the response's "result" field.
type HandlerFunc func(ctx context.Context, params []byte) (result any, err *Error)

// Registry maps method names to handlers, mirroring the retrieval pack's
// plugin-factory registry shape (package policy's Register/LookupFactory)
// generalized from plugin types to RPC methods.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

// NewRegistry returns an empty registry, dispatching log messages to log.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc), log: log}
}

// Register adds handler under method, replacing any previous handler for
// that name. Typically called from cmd/ to wire in introspection methods
// such as stack.status.
func (r *Registry) Register(method string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// lookup returns the handler for method, if registered.
func (r *Registry) lookup(method string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the names of all registered methods.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
