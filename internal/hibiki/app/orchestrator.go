package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/Hibiki/common/trace"
	"github.com/bdobrica/Hibiki/internal/hibiki/audit"
	"github.com/bdobrica/Hibiki/internal/hibiki/dispatch"
	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
	"github.com/bdobrica/Hibiki/internal/hibiki/observability"
	"github.com/bdobrica/Hibiki/internal/hibiki/responses"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
	"github.com/bdobrica/Hibiki/internal/hibiki/security"
	"github.com/bdobrica/Hibiki/internal/hibiki/state"
)

// DefaultProtocolStepDelay is the pause between two protocol steps.
const DefaultProtocolStepDelay = 1500 * time.Millisecond

var (
	// ErrCommandPanicked wraps a panic recovered while processing a command.
	ErrCommandPanicked = errors.New("command panicked")
	// ErrUnschedulable is returned for sub-commands that cannot become tasks.
	ErrUnschedulable = errors.New("action cannot be scheduled")
	// ErrNotPreauthorized refuses to schedule a destructive action that is
	// not on the pre-authorised list.
	ErrNotPreauthorized = errors.New("destructive action is not pre-authorised")
	// ErrSchedulingUnavailable is returned when no scheduler is configured.
	ErrSchedulingUnavailable = errors.New("scheduler not configured")
	// ErrUnknownProtocol is returned for a protocol name the lexicon lacks.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrTaskDenied is returned by RunTask when the policy refuses a task.
	ErrTaskDenied = errors.New("task denied")
)

// Actions the orchestrator handles itself.
const (
	actionConfirm        = "confirm"
	actionEmergency      = "emergency"
	actionSchedule       = "schedule"
	actionTimer          = "timer"
	actionProtocol       = "protocol"
	actionPauseSchedule  = "pause_schedule"
	actionResumeSchedule = "resume_schedule"
	actionLockScreen     = "lock_screen"
)

// unschedulable sub-commands never become tasks.
var unschedulable = map[string]bool{
	intent.Unknown: true,
	actionConfirm:  true,
	actionSchedule: true,
	actionTimer:    true,
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	// Parser, Policy, State and Dispatcher are required.
	Parser     *intent.Parser
	Policy     *security.Policy
	State      *state.AgentState
	Dispatcher *dispatch.Dispatcher

	// Scheduler backs the schedule and timer actions. When nil, both fail.
	Scheduler *scheduler.Scheduler

	Formatter Formatter
	// Speaker defaults to a silent speaker.
	Speaker  Speaker
	Fallback Fallback
	// Identity defaults to StaticIdentity(Owner).
	Identity Identity
	Owner    string
	// Notifier defaults to audit.Noop.
	Notifier audit.Notifier
	History  ExchangeRecorder

	// Locale is used when detection finds no language. Defaults to "uz".
	Locale string
	// Preauthorized lists destructive actions an authorised actor may
	// schedule without a confirmation at fire time.
	Preauthorized []string
	// ProtocolStepDelay defaults to DefaultProtocolStepDelay.
	ProtocolStepDelay time.Duration
}

// Orchestrator runs the parse, secure, dispatch and reply pipeline. It is safe
// for concurrent use.
type Orchestrator struct {
	parser     *intent.Parser
	policy     *security.Policy
	state      *state.AgentState
	dispatcher *dispatch.Dispatcher
	scheduler  *scheduler.Scheduler
	formatter  Formatter
	speaker    Speaker
	fallback   Fallback
	identity   Identity
	notifier   audit.Notifier
	history    ExchangeRecorder

	locale        string
	preauthorized map[string]bool
	stepDelay     time.Duration

	// life bounds running protocols independently of the command that
	// started them. StopProtocols cancels it.
	life      context.Context
	stopLife  context.CancelFunc
	protocols sync.WaitGroup
}

var _ scheduler.Runner = (*Orchestrator)(nil)

// NewOrchestrator builds an orchestrator from cfg.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		parser:     cfg.Parser,
		policy:     cfg.Policy,
		state:      cfg.State,
		dispatcher: cfg.Dispatcher,
		scheduler:  cfg.Scheduler,
		formatter:  cfg.Formatter,
		speaker:    cfg.Speaker,
		fallback:   cfg.Fallback,
		identity:   cfg.Identity,
		notifier:   cfg.Notifier,
		history:    cfg.History,
		locale:     cfg.Locale,
		stepDelay:  cfg.ProtocolStepDelay,
	}
	o.life, o.stopLife = context.WithCancel(context.Background())
	if o.formatter == nil {
		o.formatter = plainFormatter{}
	}
	if o.speaker == nil {
		o.speaker = silentSpeaker{}
	}
	if o.identity == nil {
		o.identity = StaticIdentity(cfg.Owner)
	}
	if o.notifier == nil {
		o.notifier = audit.Noop{}
	}
	if o.locale == "" {
		o.locale = "uz"
	}
	if o.stepDelay <= 0 {
		o.stepDelay = DefaultProtocolStepDelay
	}
	o.preauthorized = make(map[string]bool, len(cfg.Preauthorized))
	for _, a := range cfg.Preauthorized {
		o.preauthorized[a] = true
	}
	return o
}

// outcome is the result of routing one parsed command.
type outcome struct {
	action string
	params intent.Params
	status Status
	result any
	err    error
	// text, when set, is the reply verbatim.
	text string
}

// ProcessCommand handles one utterance end to end and never panics.
func (o *Orchestrator) ProcessCommand(ctx context.Context, cmd Command) (resp Response) {
	ctx, traceID := trace.Ensure(ctx)
	log := observability.WithTrace(ctx)

	locale := cmd.LanguageHint
	if locale == "" {
		locale = responses.DetectLanguageOr(cmd.Text, o.locale)
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("%w: %v", ErrCommandPanicked, r)
		log.Error("app: command panicked", "source", cmd.Source, "panic", r)
		resp = Response{
			Action:   "error",
			Category: lexicon.DefaultCategory,
			Status:   StatusError,
			Err:      err,
			Error:    err.Error(),
			TraceID:  traceID,
			Locale:   locale,
		}
		resp.Text = o.format("error", StatusError, locale, map[string]string{"error_message": err.Error()})
		o.say(ctx, resp.Text)
	}()

	actor := cmd.Actor
	if actor == "" {
		actor = o.identity.Actor(ctx)
	}

	parsed := o.parser.Parse(cmd.Text)
	if !parsed.IsUnknown() {
		parsed.Params.Set("original_text", cmd.Text)
	}
	log.Debug("app: command parsed", "action", parsed.Action, "score", parsed.Score, "params", parsed.Params.String(), "source", cmd.Source)

	out := o.route(ctx, parsed, actor, locale)

	resp = Response{
		Action:   out.action,
		Category: o.category(out.action),
		Status:   out.status,
		Params:   out.params,
		Result:   out.result,
		Err:      out.err,
		TraceID:  traceID,
		Locale:   locale,
	}
	if out.err != nil {
		resp.Error = out.err.Error()
	}
	resp.Text = out.text
	if resp.Text == "" {
		resp.Text = o.format(out.action, out.status, locale, replyFields(out))
	}

	o.say(ctx, resp.Text)
	if o.history != nil {
		o.history.RecordExchange(cmd.Text, resp.Text)
	}
	log.Info("app: command processed", "action", resp.Action, "status", string(resp.Status), "actor", actor, "source", cmd.Source)
	return resp
}

func (o *Orchestrator) route(ctx context.Context, parsed intent.ParsedCommand, actor, locale string) outcome {
	switch parsed.Action {
	case intent.Unknown:
		return o.unknown(ctx, parsed)
	case actionConfirm:
		return o.confirm(ctx, parsed, actor)
	case actionEmergency:
		return o.emergency(ctx, parsed, actor)
	}

	decision := o.policy.Decide(parsed.Action, parsed.Params, actor)
	switch decision.Outcome() {
	case security.OutcomeDenied:
		o.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindDenied,
			Actor:   actor,
			Action:  parsed.Action,
			Result:  "denied",
			Message: decision.Message,
		})
		return outcome{action: parsed.Action, params: parsed.Params, status: StatusDenied}

	case security.OutcomeNeedsConfirmation:
		replaced := o.policy.Request(parsed, actor)
		o.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindConfirmationRequested,
			Actor:   actor,
			Action:  parsed.Action,
			Result:  "pending",
			Message: decision.Message,
			Payload: map[string]any{"replaced": replaced},
		})
		return outcome{action: parsed.Action, params: parsed.Params, status: StatusConfirmationRequired}
	}

	return o.execute(ctx, parsed, actor, locale)
}

// unknown never dispatches. A fallback may supply the reply.
func (o *Orchestrator) unknown(ctx context.Context, parsed intent.ParsedCommand) outcome {
	out := outcome{action: intent.Unknown, params: parsed.Params, status: StatusUnknown}
	if o.fallback == nil {
		return out
	}
	if reply, ok := o.fallback.Converse(ctx, parsed.OriginalText); ok && strings.TrimSpace(reply) != "" {
		out.text = reply
	}
	return out
}

// confirm runs the waiting command without asking the policy again.
func (o *Orchestrator) confirm(ctx context.Context, parsed intent.ParsedCommand, actor string) outcome {
	pending, ok := o.policy.Confirm()
	if !ok {
		return outcome{action: actionConfirm, params: parsed.Params, status: StatusNothingToConfirm}
	}
	o.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindConfirmationGranted,
		Actor:   actor,
		Action:  pending.Command.Action,
		Message: "requested by " + pending.Actor,
		Payload: map[string]any{"waited_ms": time.Since(pending.RequestedAt).Milliseconds()},
	})
	return o.dispatch(ctx, pending.Command)
}

// emergency engages lockdown and locks the screen.
func (o *Orchestrator) emergency(ctx context.Context, parsed intent.ParsedCommand, actor string) outcome {
	o.state.SetEmergency(true)
	dropped := o.state.ClearPending()
	o.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindEmergency,
		Actor:   actor,
		Action:  actionEmergency,
		Result:  "lockdown",
		Message: "emergency lockdown engaged",
		Payload: map[string]any{"pending_dropped": dropped},
	})
	lock := intent.ParsedCommand{Action: actionLockScreen, OriginalText: parsed.OriginalText}
	if res := o.dispatcher.Dispatch(ctx, lock); !res.Success {
		observability.WithTrace(ctx).Warn("app: lock screen failed during emergency", "err", res.Err)
	}
	return outcome{action: actionEmergency, params: parsed.Params, status: StatusEmergency}
}

// execute runs a command the policy has cleared.
func (o *Orchestrator) execute(ctx context.Context, cmd intent.ParsedCommand, actor, locale string) outcome {
	switch cmd.Action {
	case actionSchedule:
		return o.schedule(ctx, cmd, actor)
	case actionTimer:
		return o.timer(ctx, cmd, actor)
	case actionProtocol:
		return o.startProtocol(ctx, cmd, actor, locale)
	case actionPauseSchedule:
		o.state.SetSchedulingEnabled(false)
		o.notifier.Notify(ctx, audit.Event{Kind: audit.KindSchedulePaused, Actor: actor, Action: cmd.Action})
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusSuccess}
	case actionResumeSchedule:
		o.state.SetSchedulingEnabled(true)
		o.notifier.Notify(ctx, audit.Event{Kind: audit.KindScheduleResumed, Actor: actor, Action: cmd.Action})
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusSuccess}
	}
	return o.dispatch(ctx, cmd)
}

func (o *Orchestrator) dispatch(ctx context.Context, cmd intent.ParsedCommand) outcome {
	res := o.dispatcher.Dispatch(ctx, cmd)
	if !res.Success {
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusError, err: res.Err}
	}
	return outcome{action: cmd.Action, params: cmd.Params, status: StatusSuccess, result: res.Value}
}

func (o *Orchestrator) category(action string) string {
	if action == intent.Unknown {
		return "UNKNOWN"
	}
	return o.parser.Lexicon().Category(action)
}

// format renders a reply, containing a misbehaving formatter.
func (o *Orchestrator) format(action string, status Status, locale string, fields map[string]string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("app: formatter panicked", "action", action, "status", string(status), "panic", r)
			text = fmt.Sprintf("%s: %s", action, status)
		}
	}()
	return o.formatter.Format(action, string(status), locale, fields)
}

func (o *Orchestrator) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("app: speaker panicked", "panic", r)
		}
	}()
	if err := o.speaker.Speak(ctx, text); err != nil {
		observability.WithTrace(ctx).Warn("app: speak failed", "err", err)
	}
}

// replyFields fills the template placeholders from an outcome.
func replyFields(out outcome) map[string]string {
	fields := make(map[string]string, 5)
	for _, k := range []string{"app_name", "url", "query"} {
		if v := out.params.GetString(k); v != "" {
			fields[k] = v
		}
	}
	if out.result != nil {
		fields["result"] = fmt.Sprint(out.result)
	}
	if out.err != nil {
		fields["error_message"] = out.err.Error()
	}
	return fields
}

type plainFormatter struct{}

func (plainFormatter) Format(action, status, _ string, fields map[string]string) string {
	if res := fields["result"]; res != "" && status == string(StatusSuccess) {
		return res
	}
	return action + ": " + status
}
