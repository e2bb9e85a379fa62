package atm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubHasher folds digits decimally, so digests are readable in tests:
// [1,2,3,4] hashes to 1234.
var stubHasher = HasherFunc(func(keys []Key) Digest {
	var d Digest
	for _, k := range keys {
		d = d*10 + Digest(k.Digit())
	}
	return d
})

func TestSwipeCard(t *testing.T) {
	testCases := []struct {
		name     string
		start    Machine
		digest   Digest
		expected Machine
	}{
		{
			name:     "swipe while waiting starts authentication",
			start:    Machine{CashInside: 10, Phase: Waiting()},
			digest:   1234,
			expected: Machine{CashInside: 10, Phase: Authenticating(1234)},
		},
		{
			name:     "swipe while authenticating is ignored",
			start:    Machine{CashInside: 10, Phase: Authenticating(1234)},
			digest:   9999,
			expected: Machine{CashInside: 10, Phase: Authenticating(1234)},
		},
		{
			name:     "swipe mid pin entry keeps the register",
			start:    Machine{CashInside: 10, Phase: Authenticating(1234), Register: []Key{KeyOne, KeyThree}},
			digest:   1234,
			expected: Machine{CashInside: 10, Phase: Authenticating(1234), Register: []Key{KeyOne, KeyThree}},
		},
		{
			name:     "swipe while authenticated is ignored",
			start:    Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyTwo}},
			digest:   1234,
			expected: Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyTwo}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			end := NextState(stubHasher, tc.start, SwipeCard(tc.digest))
			assert.True(t, end.Equal(tc.expected), "got %+v, want %+v", end, tc.expected)
		})
	}
}

func TestPressKeyBeforeSwipeIsIdentity(t *testing.T) {
	start := Machine{CashInside: 10, Phase: Waiting()}

	for _, k := range Keys {
		end := NextState(stubHasher, start, PressKey(k))
		assert.True(t, end.Equal(start), "key %s must be a no-op while waiting", k)
	}
}

func TestPINEntry(t *testing.T) {
	pin := []Key{KeyOne, KeyTwo, KeyThree, KeyFour}
	digest := stubHasher.Digest(pin)

	t.Run("digits accumulate", func(t *testing.T) {
		state := Machine{CashInside: 10, Phase: Authenticating(digest)}
		for i, k := range pin {
			state = NextState(stubHasher, state, PressKey(k))
			assert.Equal(t, Authenticating(digest), state.Phase)
			assert.Equal(t, pin[:i+1], state.Register)
		}
	})

	t.Run("correct pin authenticates and clears the register", func(t *testing.T) {
		start := Machine{CashInside: 10, Phase: Authenticating(digest), Register: pin}
		end := NextState(stubHasher, start, PressKey(KeyEnter))

		expected := Machine{CashInside: 10, Phase: Authenticated()}
		assert.True(t, end.Equal(expected), "got %+v", end)
	})

	t.Run("wrong pin resets to waiting and discards the digest", func(t *testing.T) {
		start := Machine{
			CashInside: 10,
			Phase:      Authenticating(digest),
			Register:   []Key{KeyThree, KeyThree, KeyThree, KeyThree},
		}
		end := NextState(stubHasher, start, PressKey(KeyEnter))

		expected := Machine{CashInside: 10, Phase: Waiting()}
		assert.True(t, end.Equal(expected), "got %+v", end)
	})

	t.Run("empty register hashes the empty sequence", func(t *testing.T) {
		start := Machine{CashInside: 10, Phase: Authenticating(stubHasher.Digest(nil))}
		end := NextState(stubHasher, start, PressKey(KeyEnter))
		assert.Equal(t, PhaseAuthenticated, end.Phase.Kind)
	})
}

func TestWithdraw(t *testing.T) {
	testCases := []struct {
		name     string
		start    Machine
		key      Key
		expected Machine
	}{
		{
			name:     "amount digit accumulates",
			start:    Machine{CashInside: 10, Phase: Authenticated()},
			key:      KeyOne,
			expected: Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyOne}},
		},
		{
			name:     "second amount digit appends",
			start:    Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyOne}},
			key:      KeyFour,
			expected: Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyOne, KeyFour}},
		},
		{
			name:     "withdraw acceptable amount",
			start:    Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyOne}},
			key:      KeyEnter,
			expected: Machine{CashInside: 9, Phase: Waiting()},
		},
		{
			name:     "withdraw more than the reserve is skipped",
			start:    Machine{CashInside: 10, Phase: Authenticated(), Register: []Key{KeyOne, KeyFour}},
			key:      KeyEnter,
			expected: Machine{CashInside: 10, Phase: Waiting()},
		},
		{
			name:     "withdraw from an empty machine is skipped",
			start:    Machine{CashInside: 0, Phase: Authenticated(), Register: []Key{KeyOne}},
			key:      KeyEnter,
			expected: Machine{CashInside: 0, Phase: Waiting()},
		},
		{
			name:     "empty register withdraws zero and still ends the session",
			start:    Machine{CashInside: 10, Phase: Authenticated()},
			key:      KeyEnter,
			expected: Machine{CashInside: 10, Phase: Waiting()},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			end := NextState(stubHasher, tc.start, PressKey(tc.key))
			assert.True(t, end.Equal(tc.expected), "got %+v, want %+v", end, tc.expected)
		})
	}
}

func TestDecodeAmountIsBigEndian(t *testing.T) {
	assert.Equal(t, uint64(14), DecodeAmount([]Key{KeyOne, KeyFour}))
	assert.Equal(t, uint64(13), DecodeAmount([]Key{KeyOne, KeyThree}))
	assert.Equal(t, uint64(32), DecodeAmount([]Key{KeyThree, KeyTwo}))
	assert.Equal(t, uint64(0), DecodeAmount(nil))
	assert.Equal(t, uint64(1234), DecodeAmount([]Key{KeyOne, KeyTwo, KeyThree, KeyFour}))
}

func TestNextStateNeverMutatesInput(t *testing.T) {
	register := []Key{KeyOne, KeyTwo}
	start := Machine{CashInside: 10, Phase: Authenticating(1234), Register: register}

	end := NextState(stubHasher, start, PressKey(KeyThree))

	assert.Equal(t, []Key{KeyOne, KeyTwo}, start.Register)
	assert.Equal(t, []Key{KeyOne, KeyTwo, KeyThree}, end.Register)

	// Growing the successor's register must not alias the input's backing
	// array either.
	end2 := NextState(stubHasher, end, PressKey(KeyFour))
	assert.Equal(t, []Key{KeyOne, KeyTwo, KeyThree}, end.Register)
	assert.Equal(t, []Key{KeyOne, KeyTwo, KeyThree, KeyFour}, end2.Register)
}

// TestExhaustivePhaseActionPairs checks that every (phase kind, action
// kind) combination has a defined, non-panicking result with the documented
// shape.
func TestExhaustivePhaseActionPairs(t *testing.T) {
	phases := map[PhaseKind]Phase{
		PhaseWaiting:        Waiting(),
		PhaseAuthenticating: Authenticating(42),
		PhaseAuthenticated:  Authenticated(),
	}
	actions := []Action{SwipeCard(7)}
	for _, k := range Keys {
		actions = append(actions, PressKey(k))
	}

	for kind, phase := range phases {
		for _, act := range actions {
			start := Machine{CashInside: 5, Phase: phase}
			end := NextState(stubHasher, start, act)

			assert.LessOrEqual(t, end.CashInside, start.CashInside,
				"phase %s action %s must not mint cash", kind, act.Kind)
			if end.Phase.Kind == PhaseWaiting {
				assert.Empty(t, end.Register,
					"phase %s action %s left a dirty register in waiting", kind, act.Kind)
			}
		}
	}
}

// TestRegisterNeverHoldsEnter walks every reachable transition from a fresh
// machine and asserts Enter is never retained in the register, so the
// amount decoder can only ever see digits.
func TestRegisterNeverHoldsEnter(t *testing.T) {
	pin := []Key{KeyOne, KeyTwo}
	digest := stubHasher.Digest(pin)

	seen := map[string]bool{}
	frontier := []Machine{New(9)}
	actions := []Action{SwipeCard(digest)}
	for _, k := range Keys {
		actions = append(actions, PressKey(k))
	}

	// Registers longer than the depth cap only repeat digit-append steps,
	// which never insert Enter.
	const maxDepth = 4

	for depth := 0; depth < 6 && len(frontier) > 0; depth++ {
		var next []Machine
		for _, m := range frontier {
			for _, act := range actions {
				end := NextState(stubHasher, m, act)
				for _, k := range end.Register {
					assert.NotEqual(t, KeyEnter, k, "enter leaked into register of %+v", end)
				}
				if len(end.Register) > maxDepth {
					continue
				}
				fp := fingerprint(end)
				if !seen[fp] {
					seen[fp] = true
					next = append(next, end)
				}
			}
		}
		frontier = next
	}
}

func fingerprint(m Machine) string {
	out := make([]byte, 0, len(m.Register)+16)
	out = append(out, byte(m.Phase.Kind), byte(m.CashInside))
	for _, k := range m.Register {
		out = append(out, byte(k))
	}
	return string(out)
}

// TestEndToEndSession replays the full happy path: swipe, correct PIN,
// withdraw one unit.
func TestEndToEndSession(t *testing.T) {
	h := NewHasher()
	pin := []Key{KeyOne, KeyTwo, KeyThree, KeyFour}
	digest := h.Digest(pin)

	state := New(10)

	state = NextState(h, state, SwipeCard(digest))
	assert.Equal(t, Authenticating(digest), state.Phase)

	for _, k := range pin {
		state = NextState(h, state, PressKey(k))
	}
	assert.Equal(t, pin, state.Register)

	state = NextState(h, state, PressKey(KeyEnter))
	assert.Equal(t, Authenticated(), state.Phase)
	assert.Empty(t, state.Register)

	state = NextState(h, state, PressKey(KeyOne))
	assert.Equal(t, []Key{KeyOne}, state.Register)

	state = NextState(h, state, PressKey(KeyEnter))
	assert.True(t, state.Equal(Machine{CashInside: 9, Phase: Waiting()}), "got %+v", state)
}

func TestReplayIsIdempotent(t *testing.T) {
	start := Machine{CashInside: 10, Phase: Authenticating(1234), Register: []Key{KeyOne}}
	act := PressKey(KeyTwo)

	first := NextState(stubHasher, start, act)
	second := NextState(stubHasher, start, act)

	assert.True(t, first.Equal(second))
}
