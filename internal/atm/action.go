package atm

// ActionKind discriminates the closed set of things a user can do to the
// terminal.
type ActionKind uint8

const (
	// ActionSwipeCard presents a card carrying the digest of the correct PIN.
	ActionSwipeCard ActionKind = iota + 1
	// ActionPressKey presses a single keypad key.
	ActionPressKey
)

// String returns the wire name of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionSwipeCard:
		return "swipe_card"
	case ActionPressKey:
		return "press_key"
	default:
		return "unknown"
	}
}

// Action is a tagged union over the two action kinds. Digest is meaningful
// only for ActionSwipeCard, Key only for ActionPressKey.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Digest Digest     `json:"digest,omitempty"`
	Key    Key        `json:"key,omitempty"`
}

// SwipeCard builds the card-swipe action with the expected PIN digest.
func SwipeCard(d Digest) Action {
	return Action{Kind: ActionSwipeCard, Digest: d}
}

// PressKey builds the keypress action.
func PressKey(k Key) Action {
	return Action{Kind: ActionPressKey, Key: k}
}
