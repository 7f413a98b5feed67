package environment_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Hibiki/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("HIBIKI_TEST_STRING", "  hello ")
	if got := environment.StringOr("HIBIKI_TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.StringOr("HIBIKI_TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestBoolOr(t *testing.T) {
	t.Setenv("HIBIKI_TEST_BOOL", "false")
	if environment.BoolOr("HIBIKI_TEST_BOOL", true) {
		t.Error("expected false")
	}
	t.Setenv("HIBIKI_TEST_BOOL", "maybe")
	if !environment.BoolOr("HIBIKI_TEST_BOOL", true) {
		t.Error("expected fallback for unparseable value")
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("HIBIKI_TEST_DUR", "1500ms")
	if got := environment.DurationOr("HIBIKI_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
	t.Setenv("HIBIKI_TEST_DUR", "-5s")
	if got := environment.DurationOr("HIBIKI_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("expected fallback for negative duration, got %v", got)
	}
}

func TestListOr(t *testing.T) {
	t.Setenv("HIBIKI_TEST_LIST", " alice, ,bob ,")
	want := []string{"alice", "bob"}
	if diff := cmp.Diff(want, environment.ListOr("HIBIKI_TEST_LIST", nil)); diff != "" {
		t.Errorf("ListOr mismatch (-want +got):\n%s", diff)
	}
	t.Setenv("HIBIKI_TEST_LIST", " , ")
	if diff := cmp.Diff([]string{"x"}, environment.ListOr("HIBIKI_TEST_LIST", []string{"x"})); diff != "" {
		t.Errorf("ListOr fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HIBIKI_TEST_DOTENV=from-file\nHIBIKI_TEST_PRESET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HIBIKI_TEST_PRESET", "from-env")
	t.Cleanup(func() { os.Unsetenv("HIBIKI_TEST_DOTENV") })

	if err := environment.LoadFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if got := os.Getenv("HIBIKI_TEST_DOTENV"); got != "from-file" {
		t.Errorf("expected value from file, got %q", got)
	}
	if got := os.Getenv("HIBIKI_TEST_PRESET"); got != "from-env" {
		t.Errorf("environment must win over file, got %q", got)
	}
}
