package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bdobrica/Hibiki/common/trace"
	"github.com/bdobrica/Hibiki/internal/hibiki/audit"
	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

type recorder struct {
	events []audit.Event
}

func (r *recorder) Notify(_ context.Context, evt audit.Event) {
	r.events = append(r.events, evt)
}

type failingWriter struct{ calls int }

func (f *failingWriter) WriteAudit(context.Context, string, string, string, string, string, store.AuditPayload, string) error {
	f.calls++
	return errors.New("disk full")
}

func TestStoreNotifier_WritesEntry(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := trace.WithTraceID(context.Background(), "t_abc123")
	n := audit.NewStoreNotifier(s)
	n.Notify(ctx, audit.Event{
		Kind:    audit.KindDenied,
		Actor:   "guest",
		Action:  "shutdown",
		Result:  "denied",
		Payload: map[string]any{"severity": "HIGH"},
	})

	entries, err := s.GetAuditByTrace(ctx, "t_abc123")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Event != string(audit.KindDenied) || e.Actor != "guest" || e.Action != "shutdown" || e.Result != "denied" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.PayloadJSON.String != `{"severity":"HIGH"}` {
		t.Errorf("payload: got %q", e.PayloadJSON.String)
	}
}

func TestStoreNotifier_FailureIsSwallowed(t *testing.T) {
	w := &failingWriter{}
	audit.NewStoreNotifier(w).Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
	if w.calls != 1 {
		t.Errorf("expected one write attempt, got %d", w.calls)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := trace.WithTraceID(context.Background(), "t_log")

	audit.NewLogNotifier(logger).Notify(ctx, audit.Event{
		Kind:    audit.KindConfirmationRequested,
		Actor:   "owner",
		Action:  "restart",
		Message: "awaiting confirm",
	})

	out := buf.String()
	for _, want := range []string{"confirmation.requested", "restart", "awaiting confirm", "owner", "t_log", "level=INFO"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestMulti_FillsTraceOnce(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	ctx := trace.WithTraceID(context.Background(), "t_multi")
	audit.Multi{a, nil, b}.Notify(ctx, audit.Event{Kind: audit.KindTaskFired, Action: "speak"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("fan-out: got %d and %d events", len(a.events), len(b.events))
	}
	if a.events[0].TraceID != "t_multi" || a.events[0].Timestamp.IsZero() {
		t.Errorf("event not completed: %+v", a.events[0])
	}
	if !a.events[0].Timestamp.Equal(b.events[0].Timestamp) {
		t.Error("notifiers should see the same timestamp")
	}
}

func TestSummary(t *testing.T) {
	got := audit.Summary(audit.Event{Kind: audit.KindTaskFailed, Action: "open_app", Message: "no handler", Actor: "scheduler"})
	want := "[task.failed] open_app: no handler (actor scheduler)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNoop(t *testing.T) {
	audit.Noop{}.Notify(context.Background(), audit.Event{Kind: audit.KindError, Message: "boom"})
}
