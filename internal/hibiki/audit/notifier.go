// Package audit records security and automation events.
//
// Event kinds (Event.Kind):
//   - KindDenied, KindConfirmationRequested, KindConfirmationGranted,
//     KindEmergency
//   - KindTaskScheduled, KindTaskFired, KindTaskFailed, KindTaskHeld
//   - KindSchedulePaused, KindScheduleResumed
//   - KindError
//
// Every event carries the trace ID of the command that caused it, so the
// SQLite audit log can be joined with the structured logs.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Hibiki/common/trace"
	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

// Kind is a machine-readable event category.
type Kind string

const (
	KindDenied                Kind = "security.denied"
	KindConfirmationRequested Kind = "confirmation.requested"
	KindConfirmationGranted   Kind = "confirmation.granted"
	KindEmergency             Kind = "security.emergency"
	KindTaskScheduled         Kind = "task.scheduled"
	KindTaskFired             Kind = "task.fired"
	KindTaskFailed            Kind = "task.failed"
	KindTaskHeld              Kind = "task.held"
	KindSchedulePaused        Kind = "schedule.paused"
	KindScheduleResumed       Kind = "schedule.resumed"
	KindError                 Kind = "error"
)

// Event is one auditable occurrence.
type Event struct {
	Kind    Kind
	Actor   string
	Action  string
	Result  string
	Message string
	// Payload is stored as JSON next to the entry.
	Payload map[string]any
	// TraceID defaults to the trace in the context.
	TraceID string
	// Timestamp defaults to time.Now() when zero.
	Timestamp time.Time
}

// Notifier receives audit events. Implementations must not block the caller
// for long; failures are logged, not returned.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// Noop discards events.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, Event) {}

// LogNotifier writes events to a slog logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier logging to logger, or to the default
// logger when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs evt at INFO, or WARN for denials and failures.
func (n *LogNotifier) Notify(ctx context.Context, evt Event) {
	evt = complete(ctx, evt)
	level := slog.LevelInfo
	switch evt.Kind {
	case KindDenied, KindTaskFailed, KindEmergency, KindError:
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "audit: "+Summary(evt),
		"kind", string(evt.Kind),
		"actor", evt.Actor,
		"action", evt.Action,
		"result", evt.Result,
		"trace_id", evt.TraceID,
	)
}

// Writer is the store method the StoreNotifier needs.
type Writer interface {
	WriteAudit(ctx context.Context, traceID, actor, event, action, result string, payload store.AuditPayload, errorMsg string) error
}

var _ Writer = (*store.Store)(nil)

// StoreNotifier appends events to the SQLite audit log.
type StoreNotifier struct {
	w Writer
}

// NewStoreNotifier returns a notifier writing through w.
func NewStoreNotifier(w Writer) *StoreNotifier {
	return &StoreNotifier{w: w}
}

// Notify writes evt. Failures are logged at WARN.
func (n *StoreNotifier) Notify(ctx context.Context, evt Event) {
	evt = complete(ctx, evt)
	var payload store.AuditPayload
	if len(evt.Payload) > 0 {
		payload = store.AuditPayload(evt.Payload)
	}
	result := evt.Result
	if result == "" {
		result = "ok"
	}
	var errMsg string
	if evt.Kind == KindTaskFailed || evt.Kind == KindError {
		errMsg = evt.Message
	}
	if err := n.w.WriteAudit(ctx, evt.TraceID, evt.Actor, string(evt.Kind), evt.Action, result, payload, errMsg); err != nil {
		slog.Warn("audit: failed to write audit log", "kind", string(evt.Kind), "err", err)
	}
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

// Notify forwards evt to every notifier.
func (m Multi) Notify(ctx context.Context, evt Event) {
	evt = complete(ctx, evt)
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, evt)
		}
	}
}

// Summary renders evt as one human-readable line.
func Summary(evt Event) string {
	msg := fmt.Sprintf("[%s]", evt.Kind)
	if evt.Action != "" {
		msg += " " + evt.Action
	}
	if evt.Message != "" {
		msg += ": " + evt.Message
	}
	if evt.Actor != "" {
		msg += " (actor " + evt.Actor + ")"
	}
	return msg
}

func complete(ctx context.Context, evt Event) Event {
	if evt.TraceID == "" {
		evt.TraceID = trace.FromContext(ctx)
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	return evt
}
