package atm

// PhaseKind discriminates the authentication phases.
type PhaseKind uint8

const (
	// PhaseWaiting means no card has been presented; the expected-PIN slot
	// is empty. This is the idle phase every session starts and ends in.
	PhaseWaiting PhaseKind = iota + 1
	// PhaseAuthenticating means a card was swiped and the terminal is
	// collecting PIN digits against the enclosed digest.
	PhaseAuthenticating
	// PhaseAuthenticated means the PIN matched and the terminal is
	// collecting a withdrawal amount.
	PhaseAuthenticated
)

// String returns the wire name of the phase kind.
func (k PhaseKind) String() string {
	switch k {
	case PhaseWaiting:
		return "waiting"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Phase is a tagged union over the phase kinds. Expected carries the
// correct PIN's digest and is meaningful only while authenticating.
type Phase struct {
	Kind     PhaseKind `json:"kind"`
	Expected Digest    `json:"expected,omitempty"`
}

// Waiting returns the idle phase.
func Waiting() Phase {
	return Phase{Kind: PhaseWaiting}
}

// Authenticating returns the PIN-collection phase for the given digest.
func Authenticating(expected Digest) Phase {
	return Phase{Kind: PhaseAuthenticating, Expected: expected}
}

// Authenticated returns the amount-collection phase.
func Authenticated() Phase {
	return Phase{Kind: PhaseAuthenticated}
}
