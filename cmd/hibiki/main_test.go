package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"HIBIKI_DB_PATH", "HIBIKI_OWNER", "HIBIKI_AUTHORIZED", "HIBIKI_TICK", "HIBIKI_DRY_RUN", "HIBIKI_PREAUTHORIZED", "HIBIKI_LOCALE", "HIBIKI_PROTOCOL_STEP_DELAY"} {
		t.Setenv(k, "")
	}
	cfg := loadConfig()
	if cfg.DatabasePath != "./hibiki.db" || cfg.Owner != "owner" || cfg.Locale != "uz" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if diff := cmp.Diff([]string{"owner"}, cfg.Authorized); diff != "" {
		t.Errorf("authorized mismatch (-want +got):\n%s", diff)
	}
	if cfg.Tick != scheduler.DefaultTick || cfg.ProtocolStepDelay != 1500*time.Millisecond || !cfg.DryRun {
		t.Errorf("unexpected timing defaults %+v", cfg)
	}
	if len(cfg.Preauthorized) != 0 {
		t.Errorf("preauthorized should be empty, got %v", cfg.Preauthorized)
	}
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("HIBIKI_OWNER", "alice")
	t.Setenv("HIBIKI_AUTHORIZED", "alice, bob")
	t.Setenv("HIBIKI_PREAUTHORIZED", "shutdown")
	t.Setenv("HIBIKI_TICK", "5s")
	t.Setenv("HIBIKI_DRY_RUN", "false")

	cfg := loadConfig()
	if cfg.Owner != "alice" || cfg.Tick != 5*time.Second || cfg.DryRun {
		t.Errorf("unexpected config %+v", cfg)
	}
	if diff := cmp.Diff([]string{"alice", "bob"}, cfg.Authorized); diff != "" {
		t.Errorf("authorized mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"shutdown"}, cfg.Preauthorized); diff != "" {
		t.Errorf("preauthorized mismatch (-want +got):\n%s", diff)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWith(t, filepath.Join(t.TempDir(), "hibiki.db"), args...)
}

func executeWith(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cfg := loadConfig()
	cfg.DatabasePath = dbPath
	root := newRootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseCommand(t *testing.T) {
	out, err := execute(t, "parse", "--explain", "open", "chrome")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var got struct {
		Command struct {
			Action     string         `json:"action"`
			Parameters map[string]any `json:"parameters"`
		} `json:"command"`
		Normalized string `json:"normalized"`
		Matches    []struct {
			Action string `json:"action"`
		} `json:"matches"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Command.Action != "open_app" || got.Command.Parameters["app_name"] != "chrome" {
		t.Errorf("unexpected command %+v", got.Command)
	}
	if got.Normalized != "open chrome" || len(got.Matches) == 0 {
		t.Errorf("explain output missing: %+v", got)
	}
}

func TestTasksCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "hibiki.db")
	if _, err := executeWith(t, dbPath, "tasks"); err == nil {
		t.Fatal("expected an error for a missing database")
	}

	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	err = s.SaveRecurring(context.Background(), []scheduler.Recurring{{ID: "r1", TriggerTime: "09:00", Action: "speak", Enabled: true, Repeat: true, CreatedAt: time.Now().UTC()}})
	s.Close()
	if err != nil {
		t.Fatalf("SaveRecurring: %v", err)
	}

	out, err := executeWith(t, dbPath, "tasks")
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if want := "09:00  speak  daily\n"; out != want {
		t.Errorf("tasks: got %q, want %q", out, want)
	}

	out, err = executeWith(t, dbPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, msgNoHistory) {
		t.Errorf("history: got %q", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "hibiki ") {
		t.Errorf("version: got %q", out)
	}
}
