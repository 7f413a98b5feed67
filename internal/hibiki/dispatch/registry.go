// Package dispatch routes parsed actions to their registered handlers and
// normalises the outcome into a Result.
package dispatch

import (
	"context"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
)

// Handler runs one action. A nil value with a nil error is a success.
type Handler func(ctx context.Context, p intent.Params) (any, error)

type binding struct {
	action  string
	handler Handler
}

// Registry maps action names to handlers. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	handlers map[string]Handler
	order    []binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds handler to action, replacing any earlier binding. It returns
// the registry so bindings can be chained.
func (r *Registry) Register(action string, handler Handler) *Registry {
	if _, exists := r.handlers[action]; exists {
		for i := range r.order {
			if r.order[i].action == action {
				r.order[i].handler = handler
			}
		}
	} else {
		r.order = append(r.order, binding{action: action, handler: handler})
	}
	r.handlers[action] = handler
	return r
}

// Lookup returns the handler bound to action.
func (r *Registry) Lookup(action string) (Handler, bool) {
	h, ok := r.handlers[action]
	return h, ok
}

// Has reports whether action has a handler.
func (r *Registry) Has(action string) bool {
	_, ok := r.handlers[action]
	return ok
}

// Actions lists bound actions in registration order.
func (r *Registry) Actions() []string {
	out := make([]string, len(r.order))
	for i, b := range r.order {
		out[i] = b.action
	}
	return out
}
