package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
)

// ErrHandlerNotFound is reported for actions without a registered handler.
var ErrHandlerNotFound = errors.New("no handler registered")

// ErrHandlerPanicked wraps a panic recovered from a handler.
var ErrHandlerPanicked = errors.New("handler panicked")

// DefaultQuietActions are not reported to the observer.
var DefaultQuietActions = []string{"describe_screen", "posture_monitor"}

// Observer is told about every successful non-quiet dispatch. Observe must not
// block.
type Observer interface {
	Observe(action, params string)
}

// Result is the normalised outcome of a dispatch.
type Result struct {
	Success bool
	Value   any
	Err     error
}

// Dispatcher runs handlers one at a time.
type Dispatcher struct {
	registry *Registry
	observer Observer
	quiet    map[string]bool

	// mu is held only around the handler call.
	mu sync.Mutex
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver sets the usage observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithQuietActions replaces the set of actions the observer never sees.
func WithQuietActions(actions ...string) Option {
	return func(d *Dispatcher) {
		d.quiet = make(map[string]bool, len(actions))
		for _, a := range actions {
			d.quiet[a] = true
		}
	}
}

// New returns a dispatcher over registry.
func New(registry *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry}
	WithQuietActions(DefaultQuietActions...)(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher routes to.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs the handler for cmd.Action. Handler errors and panics come
// back as an unsuccessful Result; Dispatch itself never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd intent.ParsedCommand) Result {
	handler, ok := d.registry.Lookup(cmd.Action)
	if !ok {
		return Result{Err: fmt.Errorf("%w: %s", ErrHandlerNotFound, cmd.Action)}
	}

	params := cmd.Params.Clone()
	value, err := d.call(ctx, handler, cmd.Action, params)
	if err != nil {
		slog.Warn("dispatch: handler failed", "action", cmd.Action, "err", err)
		return Result{Err: err}
	}

	if d.observer != nil && !d.quiet[cmd.Action] {
		d.notify(cmd.Action, cmd.Params.String())
	}
	return Result{Success: true, Value: value}
}

func (d *Dispatcher) call(ctx context.Context, h Handler, action string, p intent.Params) (value any, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanicked, action, r)
		}
	}()
	return h(ctx, p)
}

// notify calls the observer, swallowing any panic it raises.
func (d *Dispatcher) notify(action, params string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("dispatch: observer panicked", "action", action, "panic", r)
		}
	}()
	d.observer.Observe(action, params)
}
