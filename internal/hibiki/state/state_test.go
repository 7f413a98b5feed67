package state_test

import (
	"sync"
	"testing"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/state"
)

func pending(action string) state.Pending {
	return state.Pending{Command: intent.ParsedCommand{Action: action}, Actor: "owner"}
}

func TestNew_Defaults(t *testing.T) {
	s := state.New()
	if s.Emergency() {
		t.Error("new state should not be in lockdown")
	}
	if !s.SchedulingEnabled() {
		t.Error("new state should have scheduling enabled")
	}
	if _, ok := s.PeekPending(); ok {
		t.Error("new state should have no pending command")
	}
}

func TestPending_OverwriteAndTake(t *testing.T) {
	s := state.New()
	if replaced := s.StorePending(pending("shutdown")); replaced {
		t.Error("first store should not report a replacement")
	}
	if replaced := s.StorePending(pending("restart")); !replaced {
		t.Error("second store should report a replacement")
	}

	p, ok := s.TakePending()
	if !ok || p.Command.Action != "restart" {
		t.Fatalf("TakePending: got %q, %v; want restart, true", p.Command.Action, ok)
	}
	if _, ok := s.TakePending(); ok {
		t.Error("slot should be empty after take")
	}
}

func TestPending_ParamsAreCopied(t *testing.T) {
	s := state.New()
	p := pending("delete_file")
	p.Command.Params.Set("file_path", "/tmp/a")
	s.StorePending(p)
	p.Command.Params.Set("file_path", "/tmp/b")

	got, _ := s.PeekPending()
	if fp := got.Command.Params.GetString("file_path"); fp != "/tmp/a" {
		t.Errorf("stored params changed through caller copy: got %q", fp)
	}
}

func TestClearPending(t *testing.T) {
	s := state.New()
	if s.ClearPending() {
		t.Error("ClearPending on empty slot should report false")
	}
	s.StorePending(pending("shutdown"))
	if !s.ClearPending() {
		t.Error("ClearPending should report true when a command was waiting")
	}
}

func TestToggles_Concurrent(t *testing.T) {
	s := state.New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SetEmergency(i%2 == 0)
			s.SetSchedulingEnabled(i%2 == 1)
			_ = s.Emergency()
			_ = s.SchedulingEnabled()
			s.StorePending(pending("shutdown"))
			s.TakePending()
		}(i)
	}
	wg.Wait()
}
