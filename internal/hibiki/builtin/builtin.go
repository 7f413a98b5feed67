// Package builtin provides the handlers Hibiki ships with: speech, the clock
// and the task listing. In dry-run mode it also binds a log-only handler to
// every other action of the vocabulary, so the whole pipeline can run without
// real capability handlers.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/dispatch"
	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
)

// Speaker voices or prints a sentence.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// TaskLister is the read side of the scheduler.
type TaskLister interface {
	Recurring() []scheduler.Recurring
	Timers() []scheduler.Timer
}

// ErrNothingToSay is returned by the speak handler for an empty text.
var ErrNothingToSay = errors.New("nothing to say")

// Reserved actions are handled by the orchestrator itself and never get a
// dry-run handler.
var Reserved = map[string]bool{
	intent.Unknown:    true,
	"confirm":         true,
	"emergency":       true,
	"schedule":        true,
	"timer":           true,
	"protocol":        true,
	"pause_schedule":  true,
	"resume_schedule": true,
}

// Deps are the collaborators of the built-in handlers. Nil fields disable the
// handlers that need them.
type Deps struct {
	Speaker Speaker
	Tasks   TaskLister
	// Now defaults to time.Now.
	Now func() time.Time
}

// Register binds the built-in handlers to reg. When dryRun is set, every
// action in vocabulary that is neither reserved nor already bound gets a
// log-only handler. It returns reg for chaining.
func Register(reg *dispatch.Registry, deps Deps, vocabulary []string, dryRun bool) *dispatch.Registry {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Speaker != nil {
		reg.Register("speak", Speak(deps.Speaker))
	}
	reg.Register("get_time", GetTime(now))
	reg.Register("get_date", GetDate(now))
	if deps.Tasks != nil {
		reg.Register("get_schedule", GetSchedule(deps.Tasks))
	}

	if !dryRun {
		return reg
	}
	bound := 0
	for _, action := range vocabulary {
		if Reserved[action] || reg.Has(action) {
			continue
		}
		reg.Register(action, DryRun(action))
		bound++
	}
	slog.Info("builtin: dry-run handlers bound", "count", bound)
	return reg
}

// Speak says the "text" parameter and returns it.
func Speak(sp Speaker) dispatch.Handler {
	return func(ctx context.Context, p intent.Params) (any, error) {
		text := strings.TrimSpace(p.GetString("text"))
		if text == "" {
			return nil, ErrNothingToSay
		}
		if err := sp.Speak(ctx, text); err != nil {
			return nil, fmt.Errorf("speak: %w", err)
		}
		return text, nil
	}
}

// GetTime returns the local time as HH:MM.
func GetTime(now func() time.Time) dispatch.Handler {
	return func(context.Context, intent.Params) (any, error) {
		return now().Format(scheduler.ClockFormat), nil
	}
}

// GetDate returns the local date as YYYY-MM-DD.
func GetDate(now func() time.Time) dispatch.Handler {
	return func(context.Context, intent.Params) (any, error) {
		return now().Format("2006-01-02"), nil
	}
}

// GetSchedule lists the scheduled tasks, one per line.
func GetSchedule(tasks TaskLister) dispatch.Handler {
	return func(context.Context, intent.Params) (any, error) {
		return FormatSchedule(tasks.Recurring(), tasks.Timers()), nil
	}
}

// FormatSchedule renders task lists for display.
func FormatSchedule(recurring []scheduler.Recurring, timers []scheduler.Timer) string {
	if len(recurring) == 0 && len(timers) == 0 {
		return "No scheduled tasks."
	}
	var b strings.Builder
	for _, r := range recurring {
		state := "daily"
		switch {
		case !r.Enabled:
			state = "disabled"
		case !r.Repeat:
			state = "once"
		}
		fmt.Fprintf(&b, "%s  %s  %s", r.TriggerTime, r.Action, state)
		if r.DoneToday {
			b.WriteString(" (done today)")
		}
		b.WriteByte('\n')
	}
	for _, t := range timers {
		fmt.Fprintf(&b, "%s  %s  timer\n", t.TriggerAt.Format("2006-01-02 15:04:05"), t.Action)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// DryRun returns a handler that only logs what it would do.
func DryRun(action string) dispatch.Handler {
	return func(ctx context.Context, p intent.Params) (any, error) {
		slog.Info("builtin: dry run", "action", action, "params", p.String())
		return "dry-run: " + action, nil
	}
}
