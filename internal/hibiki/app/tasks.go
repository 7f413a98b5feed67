package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Hibiki/common/trace"
	"github.com/bdobrica/Hibiki/internal/hibiki/audit"
	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/observability"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
	"github.com/bdobrica/Hibiki/internal/hibiki/security"
)

// schedule turns the sub-command into a daily task.
func (o *Orchestrator) schedule(ctx context.Context, cmd intent.ParsedCommand, actor string) outcome {
	sub, out, ok := o.subCommand(ctx, cmd, actor)
	if !ok {
		return out
	}
	task, err := o.scheduler.AddRecurring(ctx, scheduler.Recurring{
		TriggerTime:   cmd.Params.GetString("time"),
		Action:        sub.Action,
		Params:        sub.Params,
		Repeat:        true,
		Preauthorized: security.IsDestructive(sub.Action),
	})
	if err != nil {
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusError, err: err}
	}
	o.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindTaskScheduled,
		Actor:   actor,
		Action:  task.Action,
		Message: "daily at " + task.TriggerTime,
		Payload: map[string]any{"id": task.ID, "kind": string(scheduler.KindRecurring), "preauthorized": task.Preauthorized},
	})
	return outcome{
		action: cmd.Action,
		params: cmd.Params,
		status: StatusSuccess,
		result: fmt.Sprintf("%s (%s)", task.TriggerTime, task.Action),
	}
}

// timer turns the sub-command into a one-shot timer.
func (o *Orchestrator) timer(ctx context.Context, cmd intent.ParsedCommand, actor string) outcome {
	sub, out, ok := o.subCommand(ctx, cmd, actor)
	if !ok {
		return out
	}
	minutes, _ := cmd.Params.GetInt("minutes")
	seconds, _ := cmd.Params.GetInt("seconds")
	delay, err := timerDelay(minutes, seconds)
	if err != nil {
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusError, err: err}
	}
	t, err := o.scheduler.AddTimer(ctx, scheduler.Timer{
		TriggerAt:     o.scheduler.Now().Add(delay),
		Action:        sub.Action,
		Params:        sub.Params,
		Preauthorized: security.IsDestructive(sub.Action),
	})
	if err != nil {
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusError, err: err}
	}
	o.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindTaskScheduled,
		Actor:   actor,
		Action:  t.Action,
		Message: "in " + delay.String(),
		Payload: map[string]any{"id": t.ID, "kind": string(scheduler.KindTimer), "preauthorized": t.Preauthorized},
	})
	return outcome{
		action: cmd.Action,
		params: cmd.Params,
		status: StatusSuccess,
		result: fmt.Sprintf("%s (%s)", delay, t.Action),
	}
}

// timerDelay converts the extracted amounts, refusing anything beyond
// scheduler.MaxTimerDelay before the multiplication can overflow.
func timerDelay(minutes, seconds int) (time.Duration, error) {
	minutes, seconds = max(minutes, 0), max(seconds, 0)
	if minutes > int(scheduler.MaxTimerDelay/time.Minute) || seconds > int(scheduler.MaxTimerDelay/time.Second) {
		return 0, fmt.Errorf("%w: delay of %d minutes %d seconds exceeds %s", scheduler.ErrInvalidTask, minutes, seconds, scheduler.MaxTimerDelay)
	}
	delay := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if delay > scheduler.MaxTimerDelay {
		return 0, fmt.Errorf("%w: delay %s exceeds %s", scheduler.ErrInvalidTask, delay, scheduler.MaxTimerDelay)
	}
	return delay, nil
}

// subCommand parses the sub_action of a schedule or timer command and checks
// that it may be scheduled by actor. A destructive sub-command needs an
// authorised actor and an entry on the pre-authorised list.
func (o *Orchestrator) subCommand(ctx context.Context, cmd intent.ParsedCommand, actor string) (intent.ParsedCommand, outcome, bool) {
	fail := func(status Status, err error) (intent.ParsedCommand, outcome, bool) {
		return intent.ParsedCommand{}, outcome{action: cmd.Action, params: cmd.Params, status: status, err: err}, false
	}
	if o.scheduler == nil {
		return fail(StatusError, ErrSchedulingUnavailable)
	}
	text := strings.TrimSpace(cmd.Params.GetString("sub_action"))
	sub := o.parser.Parse(text)
	if unschedulable[sub.Action] {
		return fail(StatusError, fmt.Errorf("%w: %q", ErrUnschedulable, text))
	}
	if security.IsDestructive(sub.Action) && (!o.policy.IsAuthorized(actor) || !o.preauthorized[sub.Action]) {
		o.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindDenied,
			Actor:   actor,
			Action:  sub.Action,
			Result:  "denied",
			Message: "scheduling a destructive action requires pre-authorisation",
		})
		return fail(StatusDenied, fmt.Errorf("%w: %s", ErrNotPreauthorized, sub.Action))
	}
	sub.Params.Set("original_text", text)
	return sub, outcome{}, true
}

// RunTask executes a fired task through the policy and the dispatcher. A
// destructive task that was not pre-authorised is parked in the pending slot
// and announced instead of running.
func (o *Orchestrator) RunTask(ctx context.Context, f scheduler.Fired) error {
	ctx, _ = trace.Ensure(ctx)
	log := observability.WithTrace(ctx)
	actor := o.identity.Actor(ctx)
	cmd := intent.ParsedCommand{Action: f.Action, Params: f.Params.Clone(), OriginalText: f.Params.GetString("original_text")}
	payload := map[string]any{"id": f.ID, "kind": string(f.Kind)}

	if f.Action == actionEmergency {
		o.emergency(ctx, cmd, actor)
		o.notifier.Notify(ctx, audit.Event{Kind: audit.KindTaskFired, Actor: actor, Action: f.Action, Payload: payload})
		return nil
	}

	decision := o.policy.Decide(f.Action, cmd.Params, actor)
	switch decision.Outcome() {
	case security.OutcomeDenied:
		o.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindDenied,
			Actor:   actor,
			Action:  f.Action,
			Result:  "denied",
			Message: decision.Message,
			Payload: payload,
		})
		return fmt.Errorf("%w: %s", ErrTaskDenied, decision.Message)

	case security.OutcomeNeedsConfirmation:
		if !f.Preauthorized || !o.preauthorized[f.Action] {
			o.hold(ctx, cmd, actor, payload)
			return nil
		}
		log.Info("app: running pre-authorised task", "id", f.ID, "action", f.Action)
	}

	out := o.execute(ctx, cmd, actor, o.locale)
	if out.err != nil {
		o.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindTaskFailed,
			Actor:   actor,
			Action:  f.Action,
			Result:  "failed",
			Message: out.err.Error(),
			Payload: payload,
		})
		return fmt.Errorf("task %s (%s): %w", f.ID, f.Action, out.err)
	}
	o.notifier.Notify(ctx, audit.Event{Kind: audit.KindTaskFired, Actor: actor, Action: f.Action, Payload: payload})
	return nil
}

// hold parks cmd for confirmation and tells the user.
func (o *Orchestrator) hold(ctx context.Context, cmd intent.ParsedCommand, actor string, payload map[string]any) {
	replaced := o.policy.Request(cmd, actor)
	p := map[string]any{"replaced": replaced}
	for k, v := range payload {
		p[k] = v
	}
	o.notifier.Notify(ctx, audit.Event{
		Kind:    audit.KindTaskHeld,
		Actor:   actor,
		Action:  cmd.Action,
		Result:  "pending",
		Message: "awaiting confirmation",
		Payload: p,
	})
	o.say(ctx, o.format(cmd.Action, StatusConfirmationRequired, o.locale, nil))
}
