package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
	"github.com/bdobrica/Hibiki/internal/hibiki/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu           sync.Mutex
	current      time.Time
	waiters      []fakeWaiter
	totalWaiters int
}

type fakeWaiter struct {
	fireAt time.Time
	ch     chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{current: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waiters = append(c.waiters, fakeWaiter{fireAt: c.current.Add(d), ch: ch})
	c.totalWaiters++
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	var remaining []fakeWaiter
	for _, w := range c.waiters {
		if !now.Before(w.fireAt) {
			w.ch <- w.fireAt
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()
}

func (c *fakeClock) WaitForWaiter(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		have := c.totalWaiters
		c.mu.Unlock()
		if have >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

type memStore struct {
	mu        sync.Mutex
	recurring []scheduler.Recurring
	timers    []scheduler.Timer
	lastReset string
	resets    []string
	saves     int
}

func (m *memStore) LoadRecurring(context.Context) ([]scheduler.Recurring, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduler.Recurring(nil), m.recurring...), nil
}

func (m *memStore) SaveRecurring(_ context.Context, tasks []scheduler.Recurring) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurring = tasks
	m.saves++
	return nil
}

func (m *memStore) LoadTimers(context.Context) ([]scheduler.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduler.Timer(nil), m.timers...), nil
}

func (m *memStore) SaveTimers(_ context.Context, timers []scheduler.Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = timers
	m.saves++
	return nil
}

func (m *memStore) LoadLastReset(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReset, nil
}

func (m *memStore) SaveLastReset(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReset = date
	m.resets = append(m.resets, date)
	return nil
}

type recordingRunner struct {
	mu    sync.Mutex
	fired []scheduler.Fired
	fail  map[string]error
	panic map[string]bool
	seen  chan struct{}
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{fail: map[string]error{}, panic: map[string]bool{}, seen: make(chan struct{}, 16)}
}

func (r *recordingRunner) RunTask(_ context.Context, f scheduler.Fired) error {
	r.mu.Lock()
	r.fired = append(r.fired, f)
	err := r.fail[f.Action]
	boom := r.panic[f.Action]
	r.mu.Unlock()
	r.seen <- struct{}{}
	if boom {
		panic("runner boom")
	}
	return err
}

func (r *recordingRunner) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.fired))
	for i, f := range r.fired {
		out[i] = f.Action
	}
	return out
}

func at(hhmm string, sec int) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2026-03-10 "+hhmm, time.Local)
	if err != nil {
		panic(err)
	}
	return t.Add(time.Duration(sec) * time.Second)
}

func newScheduler(t *testing.T, store scheduler.TaskStore, st *state.AgentState) (*scheduler.Scheduler, *recordingRunner) {
	t.Helper()
	runner := newRecordingRunner()
	s := scheduler.New(store, st, scheduler.WithRunner(runner), scheduler.WithClock(newFakeClock(at("08:00", 0))))
	return s, runner
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestTick_RecurringFiresOncePerDay(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s, runner := newScheduler(t, store, state.New())

	task, err := s.AddRecurring(ctx, scheduler.Recurring{
		TriggerTime: "09:00",
		Action:      "speak",
		Params:      intent.NewParams("text", "good morning"),
		Repeat:      true,
	})
	if err != nil {
		t.Fatalf("AddRecurring: %v", err)
	}
	if task.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}

	if n := s.Tick(ctx, at("09:00", 0)); n != 1 {
		t.Fatalf("first tick at 09:00: ran %d, want 1", n)
	}
	if got := s.Recurring(); len(got) != 1 || !got[0].DoneToday {
		t.Fatalf("expected done_today after firing, got %+v", got)
	}
	if n := s.Tick(ctx, at("09:00", 15)); n != 0 {
		t.Errorf("second tick at 09:00: ran %d, want 0", n)
	}
	if got := runner.actions(); len(got) != 1 || got[0] != "speak" {
		t.Errorf("runner saw %v, want [speak]", got)
	}
	if saved := store.recurring; len(saved) != 1 || !saved[0].DoneToday {
		t.Errorf("persisted task should be done today, got %+v", store.recurring)
	}
}

func TestTick_MidnightRolloverIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s, runner := newScheduler(t, store, state.New())

	if _, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "00:00", Action: "get_date", Repeat: true}); err != nil {
		t.Fatal(err)
	}

	day1 := at("00:00", 0)
	for i := 0; i < 5; i++ {
		s.Tick(ctx, day1.Add(time.Duration(i*12)*time.Second))
	}
	if got := len(runner.actions()); got != 1 {
		t.Fatalf("day 1: task ran %d times within the 00:00 minute, want 1", got)
	}

	day2 := day1.AddDate(0, 0, 1)
	for i := 0; i < 5; i++ {
		s.Tick(ctx, day2.Add(time.Duration(i*12)*time.Second))
	}
	if got := len(runner.actions()); got != 2 {
		t.Fatalf("after day 2: task ran %d times, want 2", got)
	}
	if len(store.resets) != 2 {
		t.Errorf("expected exactly one persisted reset per day, got %v", store.resets)
	}
}

func TestTick_RolloverSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s, _ := newScheduler(t, store, state.New())
	if _, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "00:00", Action: "get_date", Repeat: true}); err != nil {
		t.Fatal(err)
	}
	s.Tick(ctx, at("00:00", 0))

	restarted, runner := newScheduler(t, store, state.New())
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	restarted.Tick(ctx, at("00:00", 30))
	if got := runner.actions(); len(got) != 0 {
		t.Errorf("reloaded scheduler re-fired a task done today: %v", got)
	}
}

func TestTick_RunOnceIsRemoved(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s, runner := newScheduler(t, store, state.New())
	if _, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "10:30", Action: "speak"}); err != nil {
		t.Fatal(err)
	}
	s.Tick(ctx, at("10:30", 0))
	if got := s.Recurring(); len(got) != 0 {
		t.Errorf("run-once task should be removed, still have %+v", got)
	}
	if len(store.recurring) != 0 {
		t.Errorf("removal should be persisted, store has %+v", store.recurring)
	}
	if len(runner.actions()) != 1 {
		t.Errorf("expected one run, got %v", runner.actions())
	}
}

func TestTick_DisabledTaskDoesNotFire(t *testing.T) {
	ctx := context.Background()
	s, runner := newScheduler(t, &memStore{}, state.New())
	task, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "09:00", Action: "speak", Repeat: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetEnabled(ctx, task.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	s.Tick(ctx, at("09:00", 0))
	if len(runner.actions()) != 0 {
		t.Errorf("disabled task fired: %v", runner.actions())
	}
}

func TestTick_Timer(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s, runner := newScheduler(t, store, state.New())
	start := at("12:00", 0)
	if _, err := s.AddTimer(ctx, scheduler.Timer{TriggerAt: start.Add(5 * time.Minute), Action: "lock_screen"}); err != nil {
		t.Fatal(err)
	}

	s.Tick(ctx, start.Add(4*time.Minute))
	if len(runner.actions()) != 0 {
		t.Fatal("timer fired early")
	}
	s.Tick(ctx, start.Add(5*time.Minute))
	if got := runner.actions(); len(got) != 1 || got[0] != "lock_screen" {
		t.Fatalf("timer: runner saw %v", got)
	}
	if len(s.Timers()) != 0 || len(store.timers) != 0 {
		t.Error("fired timer should be removed and persisted")
	}
	s.Tick(ctx, start.Add(6*time.Minute))
	if len(runner.actions()) != 1 {
		t.Error("timer fired twice")
	}
}

func TestTick_PausedFiresNothing(t *testing.T) {
	ctx := context.Background()
	st := state.New()
	store := &memStore{}
	s, runner := newScheduler(t, store, st)
	if _, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "09:00", Action: "speak", Repeat: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddTimer(ctx, scheduler.Timer{TriggerAt: at("08:59", 0), Action: "get_time"}); err != nil {
		t.Fatal(err)
	}

	st.SetSchedulingEnabled(false)
	s.Tick(ctx, at("09:00", 0))
	if len(runner.actions()) != 0 {
		t.Fatalf("paused scheduler fired %v", runner.actions())
	}
	if len(store.resets) != 1 {
		t.Error("rollover should still run while paused")
	}

	st.SetSchedulingEnabled(true)
	s.Tick(ctx, at("09:00", 30))
	if got := len(runner.actions()); got != 2 {
		t.Errorf("after resume: ran %d tasks, want 2", got)
	}
}

func TestTick_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, runner := newScheduler(t, &memStore{}, state.New())
	runner.panic["explode"] = true
	runner.fail["fail"] = errors.New("handler said no")
	for _, action := range []string{"explode", "fail", "speak"} {
		if _, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "09:00", Action: action, Repeat: true}); err != nil {
			t.Fatal(err)
		}
	}

	if n := s.Tick(ctx, at("09:00", 0)); n != 3 {
		t.Errorf("ran %d tasks, want 3", n)
	}
	want := []string{"explode", "fail", "speak"}
	got := runner.actions()
	if len(got) != len(want) {
		t.Fatalf("runner saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("run %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTick_CarriesPreauthorization(t *testing.T) {
	ctx := context.Background()
	s, runner := newScheduler(t, &memStore{}, state.New())
	if _, err := s.AddTimer(ctx, scheduler.Timer{TriggerAt: at("09:00", 0), Action: "shutdown", Preauthorized: true}); err != nil {
		t.Fatal(err)
	}
	s.Tick(ctx, at("09:00", 0))
	if len(runner.fired) != 1 || !runner.fired[0].Preauthorized || runner.fired[0].Kind != scheduler.KindTimer {
		t.Errorf("fired task lost its flags: %+v", runner.fired)
	}
}

func TestAddRemove(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	s, _ := newScheduler(t, store, state.New())

	if _, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "9am", Action: "speak"}); !errors.Is(err, scheduler.ErrInvalidTask) {
		t.Errorf("bad trigger time: expected ErrInvalidTask, got %v", err)
	}
	if _, err := s.AddTimer(ctx, scheduler.Timer{Action: "speak"}); !errors.Is(err, scheduler.ErrInvalidTask) {
		t.Errorf("zero trigger: expected ErrInvalidTask, got %v", err)
	}
	if _, err := s.AddTimer(ctx, scheduler.Timer{TriggerAt: at("08:00", 0).Add(scheduler.MaxTimerDelay + time.Minute), Action: "speak"}); !errors.Is(err, scheduler.ErrInvalidTask) {
		t.Errorf("far trigger: expected ErrInvalidTask, got %v", err)
	}

	r, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "07:15", Action: "speak"})
	if err != nil {
		t.Fatal(err)
	}
	tm, err := s.AddTimer(ctx, scheduler.Timer{TriggerAt: at("23:00", 0), Action: "speak"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, r.ID); err != nil {
		t.Errorf("Remove recurring: %v", err)
	}
	if err := s.Remove(ctx, tm.ID); err != nil {
		t.Errorf("Remove timer: %v", err)
	}
	if err := s.Remove(ctx, "nope"); !errors.Is(err, scheduler.ErrTaskNotFound) {
		t.Errorf("Remove unknown: expected ErrTaskNotFound, got %v", err)
	}
	if len(store.recurring) != 0 || len(store.timers) != 0 {
		t.Error("removals should be persisted")
	}
}

func TestRun_TicksAndStops(t *testing.T) {
	clk := newFakeClock(at("08:59", 50))
	runner := newRecordingRunner()
	s := scheduler.New(&memStore{}, state.New(),
		scheduler.WithClock(clk),
		scheduler.WithTick(15*time.Second),
		scheduler.WithRunner(runner),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := s.AddTimer(ctx, scheduler.Timer{TriggerAt: at("09:00", 0), Action: "speak"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	if !clk.WaitForWaiter(1, time.Second) {
		t.Fatal("scheduler never waited on the clock")
	}
	clk.Advance(15 * time.Second)

	select {
	case <-runner.seen:
	case <-time.After(time.Second):
		t.Fatal("timer was not fired by the run loop")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// gatedStore blocks the first SaveRecurring until release is closed.
type gatedStore struct {
	*memStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) SaveRecurring(ctx context.Context, tasks []scheduler.Recurring) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.memStore.SaveRecurring(ctx, tasks)
}

func TestAddRecurring_SlowSaveDoesNotPersistStaleList(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{memStore: &memStore{}, entered: make(chan struct{}), release: make(chan struct{})}
	s, _ := newScheduler(t, store, state.New())

	errs := make(chan error, 2)
	go func() {
		_, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "07:00", Action: "speak"})
		errs <- err
	}()
	<-store.entered

	go func() {
		_, err := s.AddRecurring(ctx, scheduler.Recurring{TriggerTime: "08:00", Action: "get_time"})
		errs <- err
	}()
	deadline := time.Now().Add(time.Second)
	for len(s.Recurring()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second task never reached the in-memory list")
		}
		time.Sleep(time.Millisecond)
	}
	close(store.release)

	for range 2 {
		if err := <-errs; err != nil {
			t.Fatalf("AddRecurring: %v", err)
		}
	}
	persisted, _ := store.LoadRecurring(ctx)
	if len(persisted) != 2 {
		t.Errorf("persisted list is stale: memory has %d tasks, store has %d", len(s.Recurring()), len(persisted))
	}
}
