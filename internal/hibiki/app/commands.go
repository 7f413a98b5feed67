package app

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
)

// Command sources.
const (
	SourceCLI       = "cli"
	SourceInbox     = "inbox"
	SourceScheduler = "scheduler"
	SourceProtocol  = "protocol"
)

// Command is one utterance entering the pipeline.
type Command struct {
	Text string
	// LanguageHint is a locale code; empty means detect from Text.
	LanguageHint string
	// Actor is the requesting identity; empty means the configured owner.
	Actor string
	// Source is informational (SourceCLI, SourceInbox, ...).
	Source string
}

// Status is the outcome of one command.
type Status string

const (
	StatusSuccess              Status = "success"
	StatusDenied               Status = "denied"
	StatusConfirmationRequired Status = "confirmation_required"
	StatusNothingToConfirm     Status = "nothing_to_confirm"
	StatusEmergency            Status = "emergency"
	StatusError                Status = "error"
	StatusUnknown              Status = "unknown"
)

// Response is what ProcessCommand hands back to the caller.
type Response struct {
	Action   string        `json:"action"`
	Category string        `json:"category"`
	Status   Status        `json:"status"`
	Text     string        `json:"verbal_response"`
	Params   intent.Params `json:"parameters"`
	Result   any           `json:"result,omitempty"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	TraceID  string        `json:"trace_id"`
	Locale   string        `json:"lang"`
}

// Speaker voices a reply.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Formatter renders the reply sentence for an outcome.
type Formatter interface {
	Format(action, status, locale string, fields map[string]string) string
}

// Fallback answers input no pattern recognised. ok is false when it has
// nothing to say.
type Fallback interface {
	Converse(ctx context.Context, text string) (reply string, ok bool)
}

// ExchangeRecorder keeps the conversation history.
type ExchangeRecorder interface {
	RecordExchange(userText, response string)
}

// Identity resolves who is speaking.
type Identity interface {
	Actor(ctx context.Context) string
}

// StaticIdentity is always the same actor.
type StaticIdentity string

// Actor returns the identity itself.
func (s StaticIdentity) Actor(context.Context) string { return string(s) }

// WriterSpeaker prints replies, one per line.
type WriterSpeaker struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSpeaker returns a speaker printing to w.
func NewWriterSpeaker(w io.Writer) *WriterSpeaker {
	return &WriterSpeaker{w: w}
}

// Speak writes text followed by a newline.
func (s *WriterSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, text)
	return err
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(context.Context, string) error { return nil }
