package atm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasherIsDeterministic(t *testing.T) {
	h := NewHasher()
	pin := []Key{KeyOne, KeyTwo, KeyThree, KeyFour}

	assert.Equal(t, h.Digest(pin), h.Digest(pin))
}

func TestHasherIsOrderSensitive(t *testing.T) {
	h := NewHasher()

	assert.NotEqual(t,
		h.Digest([]Key{KeyOne, KeyTwo}),
		h.Digest([]Key{KeyTwo, KeyOne}),
	)
}

// The swipe-time and enter-time call sites must hash the identical
// pre-Enter sequence; a digest minted from the bare PIN must verify against
// the accumulated register.
func TestHasherSymmetryAcrossCallSites(t *testing.T) {
	h := NewHasher()
	pin := []Key{KeyTwo, KeyFour, KeyOne}

	minted := h.Digest(pin)

	state := NextState(h, New(5), SwipeCard(minted))
	for _, k := range pin {
		state = NextState(h, state, PressKey(k))
	}
	state = NextState(h, state, PressKey(KeyEnter))

	assert.Equal(t, PhaseAuthenticated, state.Phase.Kind)
}

func TestHasherDistinguishesEmptySequence(t *testing.T) {
	h := NewHasher()

	assert.NotEqual(t, h.Digest(nil), h.Digest([]Key{KeyOne}))
}
