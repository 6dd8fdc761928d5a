// Package correlation matches asynchronous JSON-RPC replies to their
// originating calls. The registry is identifier-scheme-agnostic: each
// handler carries its own predicate for recognizing its reply, so the
// registry works with whatever id scheme the backend protocol uses.
package correlation

import (
	"sync"
	"time"

	"toolgate.dev/cli/internal/jsonrpc"
)

// Handler examines an inbound message and reports whether it was the reply
// this registration is waiting for. Returning true removes the handler;
// returning false keeps it registered. Handlers must not call back into
// the registry.
type Handler func(msg *jsonrpc.Message) bool

type registration struct {
	handler   Handler
	timer     *time.Timer
	createdAt time.Time
}

// Registry tracks outstanding calls and resolves each exactly once: the
// first of {claiming dispatch, timeout expiry} wins, and the loser finds
// the registration already gone. Dispatch cost is O(active handlers),
// which is bounded by client pipelining depth, not by call volume.
type Registry struct {
	mu       sync.Mutex
	nextKey  uint64
	handlers map[uint64]*registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint64]*registration)}
}

// Register stores a handler and returns its registration key. Callers that
// need expiry should prefer RegisterWithTimeout; a bare registration lives
// until a dispatch claims it or Unregister removes it.
func (r *Registry) Register(handler Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.register(handler)
}

// RegisterWithTimeout stores a handler whose lifetime is bound to a timer
// from the start. If no dispatch claims the handler within the timeout, it
// is removed and onTimeout is invoked. At most one of {handler claim,
// onTimeout} ever happens.
func (r *Registry) RegisterWithTimeout(handler Handler, timeout time.Duration, onTimeout func()) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.register(handler)
	reg := r.handlers[key]
	reg.timer = time.AfterFunc(timeout, func() {
		r.mu.Lock()
		_, present := r.handlers[key]
		if present {
			delete(r.handlers, key)
		}
		r.mu.Unlock()

		// Fire outside the lock; the dispatch path lost the race.
		if present && onTimeout != nil {
			onTimeout()
		}
	})
	return key
}

func (r *Registry) register(handler Handler) uint64 {
	r.nextKey++
	key := r.nextKey
	r.handlers[key] = &registration{handler: handler, createdAt: time.Now()}
	return key
}

// Dispatch offers an inbound message to every registered handler. A
// handler that claims the message is removed, and its expiry timer is
// stopped, atomically with the claim.
func (r *Registry) Dispatch(msg *jsonrpc.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, reg := range r.handlers {
		if reg.handler(msg) {
			if reg.timer != nil {
				reg.timer.Stop()
			}
			delete(r.handlers, key)
		}
	}
}

// Unregister removes a registration without firing it. It reports whether
// the registration was still present.
func (r *Registry) Unregister(key uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.handlers[key]
	if !ok {
		return false
	}
	if reg.timer != nil {
		reg.timer.Stop()
	}
	delete(r.handlers, key)
	return true
}

// Len returns the number of outstanding registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
