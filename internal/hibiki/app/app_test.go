package app_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/app"
)

func newTestApp(t *testing.T, out *bytes.Buffer) *app.App {
	t.Helper()
	a, err := app.New(&app.Config{
		DatabasePath: filepath.Join(t.TempDir(), "hibiki.db"),
		Owner:        "owner",
		Locale:       "en",
		Tick:         time.Hour,
		DryRun:       true,
		Output:       out,
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

func TestNew_RequiresOwner(t *testing.T) {
	if _, err := app.New(&app.Config{DatabasePath: filepath.Join(t.TempDir(), "x.db")}); err == nil {
		t.Fatal("expected an error for an empty owner")
	}
}

func TestApp_RunServesStdinUntilQuit(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(t, &out)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in := strings.NewReader("open chrome\n\nevery day at 07:30 say hello\n/quit\nshutdown\n")
	if err := a.Run(ctx, in); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "chrome") {
		t.Errorf("expected a reply about chrome, got:\n%s", got)
	}
	if strings.Contains(got, "confirm") {
		t.Errorf("input after /quit must be ignored, got:\n%s", got)
	}

	tasks, err := a.Store().LoadRecurring(ctx)
	if err != nil {
		t.Fatalf("LoadRecurring: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TriggerTime != "07:30" || tasks[0].Action != "speak" {
		t.Errorf("persisted tasks: got %+v", tasks)
	}

	entries, err := a.Store().GetAuditLog(ctx, 10)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(entries) == 0 || entries[0].Event != "task.scheduled" {
		t.Errorf("expected the scheduling to be audited, got %+v", entries)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	var out bytes.Buffer
	a := newTestApp(t, &out)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
