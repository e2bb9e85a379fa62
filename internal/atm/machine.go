package atm

// Machine is one immutable snapshot of a terminal: the cash inside, the
// authentication phase, and the keys pressed since the last Enter or reset.
// NextState never mutates a snapshot; every transition produces a fresh
// value, so snapshots compare with Equal and replay deterministically.
type Machine struct {
	CashInside uint64 `json:"cash_inside"`
	Phase      Phase  `json:"phase"`
	Register   []Key  `json:"register,omitempty"`
}

// New returns the initial snapshot: the given cash reserve, Waiting phase,
// empty register.
func New(cashInside uint64) Machine {
	return Machine{
		CashInside: cashInside,
		Phase:      Waiting(),
	}
}

// Equal reports whether two snapshots are identical, register order
// included.
func (m Machine) Equal(other Machine) bool {
	if m.CashInside != other.CashInside || m.Phase != other.Phase {
		return false
	}
	if len(m.Register) != len(other.Register) {
		return false
	}
	for i, k := range m.Register {
		if other.Register[i] != k {
			return false
		}
	}

	return true
}

// NextState computes the successor snapshot for one action. It is total:
// every (snapshot, action) pair has a defined result, and invalid
// combinations return the snapshot unchanged. The Hasher must be the same
// one used to mint the expected digest carried by the swiped card.
func NextState(h Hasher, cur Machine, act Action) Machine {
	next := cur.clone()

	switch act.Kind {
	case ActionSwipeCard:
		return next.swipeCard(act.Digest)
	case ActionPressKey:
		return next.pressKey(h, act.Key)
	default:
		return next
	}
}

// clone deep-copies the snapshot so the successor never aliases the input's
// register.
func (m Machine) clone() Machine {
	out := Machine{
		CashInside: m.CashInside,
		Phase:      m.Phase,
	}
	if len(m.Register) > 0 {
		out.Register = make([]Key, len(m.Register))
		copy(out.Register, m.Register)
	}

	return out
}

// swipeCard begins a session. A swipe outside Waiting is a stray duplicate
// and is ignored: no digest overwrite, no register clear.
func (m Machine) swipeCard(expected Digest) Machine {
	if m.Phase.Kind != PhaseWaiting {
		return m
	}

	m.Phase = Authenticating(expected)
	return m
}

func (m Machine) pressKey(h Hasher, key Key) Machine {
	switch m.Phase.Kind {
	case PhaseAuthenticating:
		return m.checkPIN(h, key)
	case PhaseAuthenticated:
		return m.withdraw(key)
	default:
		// Keys before a swipe have no effect.
		return m
	}
}

// checkPIN accumulates PIN digits; Enter compares the entered digest with
// the one from the card. A mismatch returns the card: full reset to
// Waiting, expected digest discarded.
func (m Machine) checkPIN(h Hasher, key Key) Machine {
	if key != KeyEnter {
		m.Register = append(m.Register, key)
		return m
	}

	entered := h.Digest(m.Register)
	if entered == m.Phase.Expected {
		m.Phase = Authenticated()
	} else {
		m.Phase = Waiting()
	}
	m.Register = nil

	return m
}

// withdraw accumulates amount digits; Enter attempts the withdrawal. The
// reserve never goes negative: an amount above it is skipped outright (no
// partial dispense). Either way the session ends back in Waiting.
func (m Machine) withdraw(key Key) Machine {
	if key != KeyEnter {
		m.Register = append(m.Register, key)
		return m
	}

	amount := DecodeAmount(m.Register)
	if m.CashInside >= amount {
		m.CashInside -= amount
	}
	m.Phase = Waiting()
	m.Register = nil

	return m
}

// DecodeAmount reads the register as a positional decimal number, first key
// pressed most significant. An empty register is amount zero. Only digit
// keys can reach this path: Enter is consumed by withdraw before decoding.
func DecodeAmount(keys []Key) uint64 {
	var amount uint64
	for _, k := range keys {
		amount = amount*10 + k.Digit()
	}

	return amount
}
