package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/audit"
	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
	"github.com/bdobrica/Hibiki/internal/hibiki/observability"
	"github.com/bdobrica/Hibiki/internal/hibiki/security"
)

// startProtocol launches the named protocol in the background and returns
// at once. The protocol keeps the trace of ctx but not its cancellation: it
// outlives the command and stops only through StopProtocols.
func (o *Orchestrator) startProtocol(ctx context.Context, cmd intent.ParsedCommand, actor, locale string) outcome {
	name := cmd.Params.GetString("name")
	p, ok := o.parser.Lexicon().Protocol(name)
	if !ok {
		return outcome{action: cmd.Action, params: cmd.Params, status: StatusError, err: fmt.Errorf("%w: %q", ErrUnknownProtocol, name)}
	}
	pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unwatch := context.AfterFunc(o.life, cancel)
	o.protocols.Add(1)
	go func() {
		defer cancel()
		defer unwatch()
		o.runProtocol(pctx, p, actor, locale)
	}()
	return outcome{action: cmd.Action, params: cmd.Params, status: StatusSuccess, result: p.Name}
}

// StopProtocols cancels every running protocol before its next step. Later
// protocol commands are cancelled as soon as they start.
func (o *Orchestrator) StopProtocols() {
	o.stopLife()
}

// WaitProtocols blocks until every running protocol has finished.
func (o *Orchestrator) WaitProtocols() {
	o.protocols.Wait()
}

// runProtocol runs the steps in order, one every stepDelay. Each step goes
// through the policy and the dispatcher. Cancelling ctx stops the protocol
// before its next step.
func (o *Orchestrator) runProtocol(ctx context.Context, p lexicon.Protocol, actor, locale string) {
	defer o.protocols.Done()
	log := observability.WithTrace(ctx).With("protocol", p.Name)
	log.Info("app: protocol started", "steps", len(p.Steps), "actor", actor)

	for i, step := range p.Steps {
		if i > 0 {
			t := time.NewTimer(o.stepDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				log.Info("app: protocol cancelled", "completed", i)
				return
			case <-t.C:
			}
		}
		if ctx.Err() != nil {
			log.Info("app: protocol cancelled", "completed", i)
			return
		}
		o.runStep(ctx, p.Name, i, step, actor, locale)
	}
	log.Info("app: protocol finished")
}

func (o *Orchestrator) runStep(ctx context.Context, protocol string, i int, step lexicon.Step, actor, locale string) {
	log := observability.WithTrace(ctx).With("protocol", protocol, "step", i, "action", step.Action)
	defer func() {
		if r := recover(); r != nil {
			log.Error("app: protocol step panicked", "panic", r)
		}
	}()

	var params intent.Params
	for _, k := range step.ParamKeys() {
		params.Set(k, step.Params[k])
	}
	cmd := intent.ParsedCommand{Action: step.Action, Params: params, OriginalText: "protocol " + protocol}
	payload := map[string]any{"protocol": protocol, "step": i}

	if step.Action == actionProtocol || step.Action == actionConfirm {
		log.Warn("app: protocol step skipped")
		return
	}

	decision := o.policy.Decide(step.Action, cmd.Params, actor)
	switch decision.Outcome() {
	case security.OutcomeDenied:
		o.notifier.Notify(ctx, audit.Event{
			Kind:    audit.KindDenied,
			Actor:   actor,
			Action:  step.Action,
			Result:  "denied",
			Message: decision.Message,
			Payload: payload,
		})
		return
	case security.OutcomeNeedsConfirmation:
		o.hold(ctx, cmd, actor, payload)
		return
	}

	out := o.execute(ctx, cmd, actor, locale)
	if out.err != nil {
		log.Warn("app: protocol step failed", "err", out.err)
		return
	}
	log.Debug("app: protocol step done")
}
