// Package security classifies actions by risk and drives the two-step
// confirmation protocol for risky but permitted actions.
//
// A LOW decision runs immediately, MEDIUM waits in the single pending slot of
// state.AgentState until the user confirms, and HIGH is refused outright.
package security

// Severity is the risk level of a decision.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Outcome is what the orchestrator does with a decision.
type Outcome string

const (
	OutcomeSafe              Outcome = "SAFE"
	OutcomeNeedsConfirmation Outcome = "NEEDS_CONFIRMATION"
	OutcomeDenied            Outcome = "DENIED"
)

// Decision is the verdict for one action.
type Decision struct {
	Safe     bool
	Severity Severity
	Message  string
}

// Outcome maps the severity onto the orchestrator's three branches.
func (d Decision) Outcome() Outcome {
	switch d.Severity {
	case SeverityLow:
		return OutcomeSafe
	case SeverityMedium:
		return OutcomeNeedsConfirmation
	default:
		return OutcomeDenied
	}
}
