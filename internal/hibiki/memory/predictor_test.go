package memory_test

import (
	"testing"

	"github.com/bdobrica/Hibiki/internal/hibiki/memory"
)

func TestPredict(t *testing.T) {
	tests := []struct {
		name    string
		history []string
		current string
		want    string
		ok      bool
	}{
		{
			name:    "dominant successor",
			history: []string{"open_app", "get_time", "open_app", "get_time", "open_app", "search_google"},
			current: "open_app",
			want:    "get_time",
			ok:      true,
		},
		{
			name:    "history too short",
			history: []string{"open_app", "get_time", "open_app", "get_time"},
			current: "open_app",
		},
		{
			name:    "never seen",
			history: []string{"a", "b", "a", "b", "a", "b"},
			current: "c",
		},
		{
			name:    "confidence at threshold is not enough",
			history: []string{"x", "a", "x", "a", "x", "b", "x", "c", "x", "d"},
			current: "x",
		},
		{
			name:    "tie resolves alphabetically",
			history: []string{"x", "b", "x", "a", "x"},
			current: "x",
			want:    "a",
			ok:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := memory.NewPredictor(tt.history).Predict(tt.current)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v (prediction %+v)", ok, tt.ok, got)
			}
			if ok && got.Action != tt.want {
				t.Errorf("action: got %q, want %q", got.Action, tt.want)
			}
			if ok && got.Hint == "" {
				t.Error("expected a hint")
			}
		})
	}
}
