// Package atm implements the pure transition engine for a single ATM
// terminal: swipe a card, key in a PIN, key in an amount, withdraw. The
// engine has no I/O and no shared state; callers feed it one action at a
// time and keep the returned snapshot.
package atm

import "fmt"

// Key is one of the keys on the ATM keypad.
type Key uint8

const (
	KeyOne Key = iota + 1
	KeyTwo
	KeyThree
	KeyFour
	KeyEnter
)

// Keys enumerates every keypad key.
var Keys = []Key{KeyOne, KeyTwo, KeyThree, KeyFour, KeyEnter}

// String returns the display label of the key.
func (k Key) String() string {
	switch k {
	case KeyOne:
		return "one"
	case KeyTwo:
		return "two"
	case KeyThree:
		return "three"
	case KeyFour:
		return "four"
	case KeyEnter:
		return "enter"
	default:
		return fmt.Sprintf("key(%d)", uint8(k))
	}
}

// Digit returns the numeric value of the key. Enter maps to 5; it is never
// folded into a withdrawal amount because the engine consumes it before
// decoding.
func (k Key) Digit() uint64 {
	switch k {
	case KeyOne:
		return 1
	case KeyTwo:
		return 2
	case KeyThree:
		return 3
	case KeyFour:
		return 4
	case KeyEnter:
		return 5
	default:
		return 0
	}
}

// ParseKey maps a display label back to a Key.
func ParseKey(label string) (Key, error) {
	for _, k := range Keys {
		if k.String() == label {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown key label %q", label)
}
