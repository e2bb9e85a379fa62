package session

import "github.com/cashpoint-io/atmd/internal/atm"

// Outcome labels what a single applied action meant for the session. The
// engine itself signals nothing; the outcome is derived by diffing the
// snapshots before and after, which is the only observable the engine
// offers.
type Outcome string

const (
	// OutcomeSwiped means a card swipe opened a session.
	OutcomeSwiped Outcome = "swiped"
	// OutcomePINDigit means a PIN digit was accumulated.
	OutcomePINDigit Outcome = "pin_digit"
	// OutcomeAuthenticated means the entered PIN matched.
	OutcomeAuthenticated Outcome = "authenticated"
	// OutcomeAuthFailed means the entered PIN did not match; session reset.
	OutcomeAuthFailed Outcome = "auth_failed"
	// OutcomeAmountDigit means a withdrawal-amount digit was accumulated.
	OutcomeAmountDigit Outcome = "amount_digit"
	// OutcomeDispensed means the withdrawal succeeded and cash left the
	// reserve.
	OutcomeDispensed Outcome = "dispensed"
	// OutcomeDeclined means the requested amount exceeded the reserve; the
	// session still ended.
	OutcomeDeclined Outcome = "declined"
	// OutcomeIgnored means the action was out of order and the snapshot is
	// unchanged.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeThrottled means the PIN-attempt limit was hit and the session
	// was reset without consulting the engine.
	OutcomeThrottled Outcome = "throttled"
	// OutcomeReset means an idle sweep or an operator reset ended the
	// session.
	OutcomeReset Outcome = "reset"
)

// classify derives the outcome of one applied action from the before/after
// snapshots.
func classify(before, after atm.Machine, act atm.Action) Outcome {
	switch act.Kind {
	case atm.ActionSwipeCard:
		if before.Phase.Kind == atm.PhaseWaiting && after.Phase.Kind == atm.PhaseAuthenticating {
			return OutcomeSwiped
		}
		return OutcomeIgnored

	case atm.ActionPressKey:
		switch before.Phase.Kind {
		case atm.PhaseAuthenticating:
			if act.Key != atm.KeyEnter {
				return OutcomePINDigit
			}
			if after.Phase.Kind == atm.PhaseAuthenticated {
				return OutcomeAuthenticated
			}
			return OutcomeAuthFailed

		case atm.PhaseAuthenticated:
			if act.Key != atm.KeyEnter {
				return OutcomeAmountDigit
			}
			if atm.DecodeAmount(before.Register) <= before.CashInside {
				return OutcomeDispensed
			}
			return OutcomeDeclined
		}
	}

	return OutcomeIgnored
}
