// Package memory records what the agent does and learns which command tends
// to follow which.
//
// The Tracker is the dispatcher's observer. Observe never blocks: events go
// into a bounded queue drained by Run, and are dropped with a warning when the
// queue is full.
package memory

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bdobrica/Hibiki/internal/hibiki/dispatch"
	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

// DefaultQueueSize bounds the number of observed commands awaiting Run.
const DefaultQueueSize = 64

// HistoryStore is the persistence the Tracker needs. *store.Store satisfies it.
type HistoryStore interface {
	RecordCommand(ctx context.Context, action, params string) error
	RecentCommands(ctx context.Context, limit int) ([]store.CommandRecord, error)
	IncrementAppUsage(ctx context.Context, app string) error
	RecordExchange(ctx context.Context, userText, response string) error
}

var _ HistoryStore = (*store.Store)(nil)

type eventKind int

const (
	eventCommand eventKind = iota
	eventExchange
)

type event struct {
	kind eventKind
	a, b string
}

// Tracker persists observed commands and conversation turns and logs a hint
// when the next command looks predictable.
type Tracker struct {
	store  HistoryStore
	queue  chan event
	window int

	dropped atomic.Int64

	mu   sync.Mutex
	last *Prediction
}

var _ dispatch.Observer = (*Tracker)(nil)

// NewTracker returns a tracker writing to hs.
func NewTracker(hs HistoryStore) *Tracker {
	return &Tracker{
		store:  hs,
		queue:  make(chan event, DefaultQueueSize),
		window: DefaultHistoryWindow,
	}
}

// Observe queues a dispatched command.
func (t *Tracker) Observe(action, params string) {
	t.enqueue(event{kind: eventCommand, a: action, b: params})
}

// RecordExchange queues a conversation turn.
func (t *Tracker) RecordExchange(userText, response string) {
	t.enqueue(event{kind: eventExchange, a: userText, b: response})
}

func (t *Tracker) enqueue(ev event) {
	select {
	case t.queue <- ev:
	default:
		n := t.dropped.Add(1)
		slog.Warn("memory: queue full; dropping event", "dropped_total", n)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// LastPrediction returns the most recent confident prediction, if any.
func (t *Tracker) LastPrediction() (Prediction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Prediction{}, false
	}
	return *t.last, true
}

// Run drains the queue until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-t.queue:
			t.handle(ctx, ev)
		}
	}
}

func (t *Tracker) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventExchange:
		if err := t.store.RecordExchange(ctx, ev.a, ev.b); err != nil {
			slog.Warn("memory: failed to record exchange", "err", err)
		}
	case eventCommand:
		t.recordCommand(ctx, ev.a, ev.b)
	}
}

func (t *Tracker) recordCommand(ctx context.Context, action, params string) {
	if err := t.store.RecordCommand(ctx, action, params); err != nil {
		slog.Warn("memory: failed to record command", "action", action, "err", err)
		return
	}
	if action == "open_app" {
		if app := paramValue(params, "app_name"); app != "" {
			if err := t.store.IncrementAppUsage(ctx, app); err != nil {
				slog.Warn("memory: failed to record app usage", "app", app, "err", err)
			}
		}
	}

	history, err := t.store.RecentCommands(ctx, t.window)
	if err != nil {
		slog.Warn("memory: failed to load history", "err", err)
		return
	}
	actions := make([]string, len(history))
	for i, rec := range history {
		actions[i] = rec.Action
	}
	pred, ok := NewPredictor(actions).Predict(action)
	if !ok {
		return
	}
	t.mu.Lock()
	t.last = &pred
	t.mu.Unlock()
	slog.Info("memory: next action predicted", "after", action, "action", pred.Action,
		"confidence", strconv.FormatFloat(pred.Confidence, 'f', 2, 64), "hint", pred.Hint)
}

// paramValue pulls key out of a rendered parameter string such as
// `app_name="chrome" text="hi there"`.
func paramValue(params, key string) string {
	prefix := key + "="
	for rest := params; rest != ""; {
		i := strings.Index(rest, prefix)
		if i < 0 {
			return ""
		}
		if i > 0 && rest[i-1] != ' ' {
			rest = rest[i+len(prefix):]
			continue
		}
		quoted, err := strconv.QuotedPrefix(rest[i+len(prefix):])
		if err != nil {
			return ""
		}
		v, err := strconv.Unquote(quoted)
		if err != nil {
			return ""
		}
		return v
	}
	return ""
}
