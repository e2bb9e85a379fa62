package audit

import (
	"fmt"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/session"
)

func toDigest(v int64) atm.Digest {
	return atm.Digest(uint64(v))
}

// Replay folds a terminal's journal through the transition engine and
// returns the reconstructed snapshot. initialCash must match the reserve
// the terminal was provisioned with. Reset and throttle events are not
// engine actions; they re-seed a waiting snapshot with the reserve carried
// over, exactly as the session manager does.
func Replay(h atm.Hasher, initialCash uint64, events []Event) (atm.Machine, error) {
	machine := atm.New(initialCash)

	for _, ev := range events {
		switch session.Outcome(ev.Outcome) {
		case session.OutcomeReset, session.OutcomeThrottled:
			machine = atm.New(machine.CashInside)
			continue
		}

		act, err := actionFromEvent(ev)
		if err != nil {
			return atm.Machine{}, err
		}

		machine = atm.NextState(h, machine, act)
	}

	return machine, nil
}

// Verify replays the journal and reports whether it reproduces the given
// snapshot, catching journal gaps or out-of-band state edits.
func Verify(h atm.Hasher, initialCash uint64, events []Event, current atm.Machine) (bool, error) {
	rebuilt, err := Replay(h, initialCash, events)
	if err != nil {
		return false, err
	}

	return rebuilt.Equal(current), nil
}

func actionFromEvent(ev Event) (atm.Action, error) {
	switch ev.ActionKind {
	case atm.ActionSwipeCard.String():
		return atm.SwipeCard(ev.PINDigest), nil
	case atm.ActionPressKey.String():
		key, err := atm.ParseKey(ev.KeyLabel)
		if err != nil {
			return atm.Action{}, fmt.Errorf("event %d: %w", ev.ID, err)
		}
		return atm.PressKey(key), nil
	default:
		return atm.Action{}, fmt.Errorf("event %d: unknown action kind %q", ev.ID, ev.ActionKind)
	}
}
