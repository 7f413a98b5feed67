package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

type fakeHistory struct {
	mu        sync.Mutex
	commands  []store.CommandRecord
	apps      map[string]int
	exchanges [][2]string
	written   chan struct{}
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{apps: map[string]int{}, written: make(chan struct{}, 128)}
}

func (f *fakeHistory) RecordCommand(_ context.Context, action, params string) error {
	f.mu.Lock()
	f.commands = append(f.commands, store.CommandRecord{ID: int64(len(f.commands) + 1), Action: action, Params: params})
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) RecentCommands(_ context.Context, limit int) ([]store.CommandRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.commands
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	f.written <- struct{}{}
	return append([]store.CommandRecord(nil), out...), nil
}

func (f *fakeHistory) IncrementAppUsage(_ context.Context, app string) error {
	f.mu.Lock()
	f.apps[app]++
	f.mu.Unlock()
	return nil
}

func (f *fakeHistory) RecordExchange(_ context.Context, userText, response string) error {
	f.mu.Lock()
	f.exchanges = append(f.exchanges, [2]string{userText, response})
	f.mu.Unlock()
	f.written <- struct{}{}
	return nil
}

func waitWrites(t *testing.T, f *fakeHistory, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.written:
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d of %d writes", i, n)
		}
	}
}

func TestTracker_RecordsCommandsAndUsage(t *testing.T) {
	hs := newFakeHistory()
	tr := NewTracker(hs)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { tr.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	seq := []struct{ action, params string }{
		{"open_app", `app_name="chrome"`},
		{"get_time", ""},
		{"open_app", `app_name="chrome"`},
		{"get_time", ""},
		{"open_app", `app_name="vscode"`},
		{"get_time", ""},
		{"open_app", `app_name="chrome"`},
	}
	for _, c := range seq {
		tr.Observe(c.action, c.params)
	}
	waitWrites(t, hs, len(seq))

	hs.mu.Lock()
	if len(hs.commands) != len(seq) {
		t.Errorf("commands: got %d, want %d", len(hs.commands), len(seq))
	}
	if hs.apps["chrome"] != 3 || hs.apps["vscode"] != 1 {
		t.Errorf("app usage: got %v", hs.apps)
	}
	hs.mu.Unlock()

	// The prediction is stored just after the history read that signalled us.
	deadline := time.Now().Add(time.Second)
	for {
		pred, ok := tr.LastPrediction()
		if ok && pred.Action == "get_time" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("prediction: got %+v (ok=%v), want get_time", pred, ok)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTracker_RecordExchange(t *testing.T) {
	hs := newFakeHistory()
	tr := NewTracker(hs)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { tr.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	tr.RecordExchange("salom", "Salom, Janob")
	waitWrites(t, hs, 1)

	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.exchanges) != 1 || hs.exchanges[0][1] != "Salom, Janob" {
		t.Errorf("exchanges: %v", hs.exchanges)
	}
}

func TestTracker_ObserveNeverBlocks(t *testing.T) {
	tr := NewTracker(newFakeHistory())
	for i := 0; i < DefaultQueueSize+10; i++ {
		tr.Observe("get_time", "")
	}
	if got := tr.Dropped(); got != 10 {
		t.Errorf("dropped: got %d, want 10", got)
	}
}

func TestParamValue(t *testing.T) {
	tests := []struct {
		params, key, want string
	}{
		{`app_name="chrome"`, "app_name", "chrome"},
		{`text="app_name=\"x\"" app_name="vs code"`, "app_name", "vs code"},
		{`my_app_name="no" app_name="yes"`, "app_name", "yes"},
		{`text="hi"`, "app_name", ""},
		{`app_name=broken`, "app_name", ""},
	}
	for _, tt := range tests {
		if got := paramValue(tt.params, tt.key); got != tt.want {
			t.Errorf("paramValue(%q, %q): got %q, want %q", tt.params, tt.key, got, tt.want)
		}
	}
}
