package security

import (
	"fmt"
	"time"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/state"
)

// DestructiveActions need an authorised actor and an explicit confirmation.
var DestructiveActions = map[string]bool{
	"shutdown":      true,
	"restart":       true,
	"delete_file":   true,
	"format_disk":   true,
	"kill_process":  true,
	"self_destruct": true,
}

// IsDestructive reports whether action is in DestructiveActions.
func IsDestructive(action string) bool {
	return DestructiveActions[action]
}

// Policy evaluates actions against the lockdown flag and the authorised set.
type Policy struct {
	state      *state.AgentState
	authorized map[string]bool
	now        func() time.Time
}

// NewPolicy returns a policy over st. authorized lists the identities allowed
// to request destructive actions.
func NewPolicy(st *state.AgentState, authorized []string) *Policy {
	set := make(map[string]bool, len(authorized))
	for _, a := range authorized {
		set[a] = true
	}
	return &Policy{state: st, authorized: set, now: time.Now}
}

// IsAuthorized reports whether actor is in the authorised set.
func (p *Policy) IsAuthorized(actor string) bool {
	return p.authorized[actor]
}

// Decide classifies action for actor. Lockdown denies everything; destructive
// actions need confirmation from an authorised actor and are denied for
// anyone else; all remaining actions are safe.
func (p *Policy) Decide(action string, _ intent.Params, actor string) Decision {
	if p.state.Emergency() {
		return Decision{
			Safe:     false,
			Severity: SeverityHigh,
			Message:  "emergency lockdown is active; actions are suspended",
		}
	}
	if IsDestructive(action) {
		if !p.authorized[actor] {
			return Decision{
				Safe:     false,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("%s is not authorised to run %s", actor, action),
			}
		}
		return Decision{
			Safe:     false,
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("%s may be harmful; confirm to proceed", action),
		}
	}
	return Decision{Safe: true, Severity: SeverityLow, Message: "safe"}
}

// Request parks cmd in the pending slot. Any command already waiting is
// dropped; replaced reports whether that happened.
func (p *Policy) Request(cmd intent.ParsedCommand, actor string) (replaced bool) {
	return p.state.StorePending(state.Pending{
		Command:     cmd,
		Actor:       actor,
		RequestedAt: p.now(),
	})
}

// Confirm takes the pending command and clears the slot.
func (p *Policy) Confirm() (state.Pending, bool) {
	return p.state.TakePending()
}
