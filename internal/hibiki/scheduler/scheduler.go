// Package scheduler fires recurring and delayed commands back into the
// orchestrator.
//
// A single goroutine ticks at a fixed interval. Each tick first applies the
// daily rollover, then collects due tasks under the task lock, persists the
// updated lists and finally runs the collected tasks with the lock released,
// so a slow handler never blocks task management.
//
// Clock injection: New accepts WithClock so tests can advance time without
// wall-clock sleeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Hibiki/internal/hibiki/state"
)

// DefaultTick is the interval between ticks.
const DefaultTick = 15 * time.Second

// MaxTimerDelay is the furthest ahead a timer may be set.
const MaxTimerDelay = 366 * 24 * time.Hour

const dateFormat = "2006-01-02"

// ErrTaskNotFound is returned for an unknown task ID.
var ErrTaskNotFound = errors.New("task not found")

// ErrInvalidTask is wrapped by validation failures in AddRecurring and AddTimer.
var ErrInvalidTask = errors.New("invalid task")

// ────────────────────────────────────────────────────────────────────────────
// Clock abstraction (testability)
// ────────────────────────────────────────────────────────────────────────────

// Clock is an interface over time.Now and time.After.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ────────────────────────────────────────────────────────────────────────────
// Scheduler
// ────────────────────────────────────────────────────────────────────────────

// Scheduler owns the task lists. All methods are safe for concurrent use.
type Scheduler struct {
	// persistMu serialises saves. Each save snapshots the lists after taking
	// it, so the last save always writes the newest state. Lock order is
	// persistMu before mu.
	persistMu sync.Mutex

	mu        sync.Mutex
	recurring []Recurring
	timers    []Timer
	lastReset string

	store  TaskStore
	state  *state.AgentState
	runner Runner
	clk    Clock
	tick   time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock injects a clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clk = c }
}

// WithTick sets the tick interval. Non-positive values keep DefaultTick.
func WithTick(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithRunner sets the runner at construction time.
func WithRunner(r Runner) Option {
	return func(s *Scheduler) { s.runner = r }
}

// New returns a scheduler persisting through store (nil keeps tasks in memory
// only) and honouring the pause toggle of st.
func New(store TaskStore, st *state.AgentState, opts ...Option) *Scheduler {
	if store == nil {
		store = nopStore{}
	}
	s := &Scheduler{
		store: store,
		state: st,
		clk:   realClock{},
		tick:  DefaultTick,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetRunner sets the runner. The orchestrator and the scheduler refer to each
// other, so the runner is usually bound after both exist.
func (s *Scheduler) SetRunner(r Runner) {
	s.mu.Lock()
	s.runner = r
	s.mu.Unlock()
}

// Now reads the scheduler's clock.
func (s *Scheduler) Now() time.Time {
	return s.clk.Now()
}

// Load replaces the in-memory lists with the persisted ones.
func (s *Scheduler) Load(ctx context.Context) error {
	recurring, err := s.store.LoadRecurring(ctx)
	if err != nil {
		return fmt.Errorf("load recurring tasks: %w", err)
	}
	timers, err := s.store.LoadTimers(ctx)
	if err != nil {
		return fmt.Errorf("load timers: %w", err)
	}
	lastReset, err := s.store.LoadLastReset(ctx)
	if err != nil {
		return fmt.Errorf("load last reset date: %w", err)
	}

	s.mu.Lock()
	s.recurring = recurring
	s.timers = timers
	s.lastReset = lastReset
	s.mu.Unlock()

	slog.Info("scheduler: tasks loaded", "recurring", len(recurring), "timers", len(timers), "last_reset", lastReset)
	return nil
}

// AddRecurring validates and stores a daily task. The task is always enabled
// and not yet done; an empty ID gets a fresh UUID.
func (s *Scheduler) AddRecurring(ctx context.Context, r Recurring) (Recurring, error) {
	if _, err := time.Parse(ClockFormat, r.TriggerTime); err != nil {
		return Recurring{}, fmt.Errorf("%w: trigger time %q is not HH:MM", ErrInvalidTask, r.TriggerTime)
	}
	if r.Action == "" {
		return Recurring{}, fmt.Errorf("%w: action must not be empty", ErrInvalidTask)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clk.Now()
	}
	r.Params = r.Params.Clone()
	r.Enabled = true
	r.DoneToday = false

	s.mu.Lock()
	s.recurring = append(s.recurring, r)
	s.mu.Unlock()

	slog.Info("scheduler: recurring task added", "id", r.ID, "time", r.TriggerTime, "action", r.Action, "repeat", r.Repeat)
	if err := s.saveRecurring(ctx); err != nil {
		return r, fmt.Errorf("save recurring tasks: %w", err)
	}
	return r, nil
}

// AddTimer validates and stores a one-shot timer.
func (s *Scheduler) AddTimer(ctx context.Context, t Timer) (Timer, error) {
	if t.TriggerAt.IsZero() {
		return Timer{}, fmt.Errorf("%w: trigger time must be set", ErrInvalidTask)
	}
	if t.Action == "" {
		return Timer{}, fmt.Errorf("%w: action must not be empty", ErrInvalidTask)
	}
	if t.TriggerAt.After(s.clk.Now().Add(MaxTimerDelay)) {
		return Timer{}, fmt.Errorf("%w: trigger time %s is more than %s ahead", ErrInvalidTask, t.TriggerAt.Format(time.RFC3339), MaxTimerDelay)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clk.Now()
	}
	t.Params = t.Params.Clone()

	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()

	slog.Info("scheduler: timer added", "id", t.ID, "at", t.TriggerAt.Format(time.RFC3339), "action", t.Action)
	if err := s.saveTimers(ctx); err != nil {
		return t, fmt.Errorf("save timers: %w", err)
	}
	return t, nil
}

// Remove deletes the task with id, whichever kind it is.
func (s *Scheduler) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	for i, r := range s.recurring {
		if r.ID == id {
			s.recurring = append(s.recurring[:i:i], s.recurring[i+1:]...)
			s.mu.Unlock()
			return s.saveRecurring(ctx)
		}
	}
	for i, t := range s.timers {
		if t.ID == id {
			s.timers = append(s.timers[:i:i], s.timers[i+1:]...)
			s.mu.Unlock()
			return s.saveTimers(ctx)
		}
	}
	s.mu.Unlock()
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// SetEnabled toggles a recurring task.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	for i := range s.recurring {
		if s.recurring[i].ID == id {
			s.recurring[i].Enabled = enabled
			s.mu.Unlock()
			return s.saveRecurring(ctx)
		}
	}
	s.mu.Unlock()
	return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
}

// Recurring returns a copy of the recurring tasks.
func (s *Scheduler) Recurring() []Recurring {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecurring(s.recurring)
}

// Timers returns a copy of the pending timers.
func (s *Scheduler) Timers() []Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTimers(s.timers)
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler: started", "tick", s.tick.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return nil
		case <-s.clk.After(s.tick):
			s.Tick(ctx, s.clk.Now())
		}
	}
}

// Tick processes one clock reading and returns how many tasks it ran.
//
// Order: daily rollover, pause check, trigger evaluation, removal and
// persistence, then execution. The rollover runs at most once per local date,
// so repeated ticks within the same minute cannot re-arm a task that
// already fired.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	paused := !s.state.SchedulingEnabled()

	s.mu.Lock()
	var (
		fired                      []Fired
		recurringDirty, timerDirty bool
		resetDate                  string
	)

	// ── Daily rollover ───────────────────────────────────────────────────────
	// Keyed on the date rather than on observing 00:00, so a process that was
	// down at midnight still re-arms its tasks on the first tick of the day.
	if today := now.Format(dateFormat); today != s.lastReset {
		for i := range s.recurring {
			if s.recurring[i].DoneToday {
				s.recurring[i].DoneToday = false
				recurringDirty = true
			}
		}
		s.lastReset = today
		resetDate = today
	}

	// ── Triggers ─────────────────────────────────────────────────────────────
	if !paused {
		hhmm := now.Format(ClockFormat)
		kept := make([]Recurring, 0, len(s.recurring))
		for _, r := range s.recurring {
			if r.Enabled && r.TriggerTime == hhmm && !r.DoneToday {
				fired = append(fired, r.fired())
				recurringDirty = true
				if !r.Repeat {
					continue
				}
				r.DoneToday = true
			}
			kept = append(kept, r)
		}
		s.recurring = kept

		pending := make([]Timer, 0, len(s.timers))
		for _, t := range s.timers {
			if !now.Before(t.TriggerAt) {
				fired = append(fired, t.fired())
				timerDirty = true
				continue
			}
			pending = append(pending, t)
		}
		s.timers = pending
	}

	runner := s.runner
	s.mu.Unlock()

	// ── Persistence ──────────────────────────────────────────────────────────
	if resetDate != "" {
		if err := s.saveLastReset(ctx); err != nil {
			slog.Error("scheduler: failed to persist reset date", "date", resetDate, "err", err)
		}
		slog.Debug("scheduler: daily rollover", "date", resetDate)
	}
	if recurringDirty {
		if err := s.saveRecurring(ctx); err != nil {
			slog.Error("scheduler: failed to persist recurring tasks", "err", err)
		}
	}
	if timerDirty {
		if err := s.saveTimers(ctx); err != nil {
			slog.Error("scheduler: failed to persist timers", "err", err)
		}
	}

	// ── Execution ────────────────────────────────────────────────────────────
	ran := 0
	for _, f := range fired {
		if ctx.Err() != nil {
			slog.Warn("scheduler: context cancelled; skipping fired task", "id", f.ID, "action", f.Action)
			continue
		}
		if runner == nil {
			slog.Error("scheduler: no runner bound; dropping fired task", "id", f.ID, "action", f.Action)
			continue
		}
		s.run(ctx, runner, f)
		ran++
	}
	return ran
}

// run executes one task, containing its errors and panics.
func (s *Scheduler) run(ctx context.Context, runner Runner, f Fired) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: task panicked", "id", f.ID, "action", f.Action, "panic", r)
		}
	}()
	slog.Info("scheduler: task fired", "id", f.ID, "kind", string(f.Kind), "action", f.Action)
	if err := runner.RunTask(ctx, f); err != nil {
		slog.Warn("scheduler: task failed", "id", f.ID, "action", f.Action, "err", err)
	}
}

// saveRecurring writes the current recurring list. The snapshot is taken
// under persistMu, so a save that waited behind a slower one never writes an
// older list over a newer one.
func (s *Scheduler) saveRecurring(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	snapshot := cloneRecurring(s.recurring)
	s.mu.Unlock()
	return s.store.SaveRecurring(ctx, snapshot)
}

func (s *Scheduler) saveTimers(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	snapshot := cloneTimers(s.timers)
	s.mu.Unlock()
	return s.store.SaveTimers(ctx, snapshot)
}

func (s *Scheduler) saveLastReset(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.mu.Lock()
	date := s.lastReset
	s.mu.Unlock()
	return s.store.SaveLastReset(ctx, date)
}

func cloneRecurring(in []Recurring) []Recurring {
	out := make([]Recurring, len(in))
	for i, r := range in {
		r.Params = r.Params.Clone()
		out[i] = r
	}
	return out
}

func cloneTimers(in []Timer) []Timer {
	out := make([]Timer, len(in))
	for i, t := range in {
		t.Params = t.Params.Clone()
		out[i] = t
	}
	return out
}
