package scheduler

import (
	"context"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
)

// Kind tells recurring tasks and timers apart once they fire.
type Kind string

const (
	KindRecurring Kind = "recurring"
	KindTimer     Kind = "timer"
)

// ClockFormat is the layout of Recurring.TriggerTime.
const ClockFormat = "15:04"

// Recurring fires at a wall-clock minute every day until removed. A task
// without Repeat fires once and is then removed.
type Recurring struct {
	ID            string        `json:"id"`
	TriggerTime   string        `json:"trigger_time"`
	Action        string        `json:"action"`
	Params        intent.Params `json:"params"`
	Enabled       bool          `json:"enabled"`
	Repeat        bool          `json:"repeat"`
	DoneToday     bool          `json:"done_today"`
	Preauthorized bool          `json:"preauthorized"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Timer fires once when the clock reaches TriggerAt.
type Timer struct {
	ID            string        `json:"id"`
	TriggerAt     time.Time     `json:"trigger_at"`
	Action        string        `json:"action"`
	Params        intent.Params `json:"params"`
	Preauthorized bool          `json:"preauthorized"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Fired is a task handed to the Runner.
type Fired struct {
	Kind          Kind
	ID            string
	Action        string
	Params        intent.Params
	Preauthorized bool
}

func (r Recurring) fired() Fired {
	return Fired{Kind: KindRecurring, ID: r.ID, Action: r.Action, Params: r.Params.Clone(), Preauthorized: r.Preauthorized}
}

func (t Timer) fired() Fired {
	return Fired{Kind: KindTimer, ID: t.ID, Action: t.Action, Params: t.Params.Clone(), Preauthorized: t.Preauthorized}
}

// Runner executes fired tasks through the same security and dispatch path as
// live commands.
type Runner interface {
	RunTask(ctx context.Context, f Fired) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, f Fired) error

// RunTask calls f.
func (f RunnerFunc) RunTask(ctx context.Context, fired Fired) error { return f(ctx, fired) }

// TaskStore persists the task lists. Saves replace the whole list of a kind.
type TaskStore interface {
	LoadRecurring(ctx context.Context) ([]Recurring, error)
	SaveRecurring(ctx context.Context, tasks []Recurring) error
	LoadTimers(ctx context.Context) ([]Timer, error)
	SaveTimers(ctx context.Context, timers []Timer) error
	LoadLastReset(ctx context.Context) (string, error)
	SaveLastReset(ctx context.Context, date string) error
}

// nopStore keeps nothing.
type nopStore struct{}

func (nopStore) LoadRecurring(context.Context) ([]Recurring, error) { return nil, nil }
func (nopStore) SaveRecurring(context.Context, []Recurring) error   { return nil }
func (nopStore) LoadTimers(context.Context) ([]Timer, error)        { return nil, nil }
func (nopStore) SaveTimers(context.Context, []Timer) error          { return nil }
func (nopStore) LoadLastReset(context.Context) (string, error)      { return "", nil }
func (nopStore) SaveLastReset(context.Context, string) error        { return nil }
