package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/session"
)

// memoryJournal captures entries as persisted events, standing in for the
// SQL repository.
type memoryJournal struct {
	events []Event
}

func (j *memoryJournal) Append(_ context.Context, entry session.JournalEntry) error {
	ev := FromEntry(entry)
	ev.ID = int64(len(j.events) + 1)
	j.events = append(j.events, ev)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReplayReconstructsSession(t *testing.T) {
	h := atm.NewHasher()
	journal := &memoryJournal{}
	storage := session.NewMemoryStorage()
	mgr := session.NewManager(storage, h, nil, journal, testLogger(), nil, session.Config{InitialCash: 10})
	ctx := context.Background()

	pin := []atm.Key{atm.KeyOne, atm.KeyTwo, atm.KeyThree, atm.KeyFour}
	actions := []atm.Action{
		atm.PressKey(atm.KeyTwo), // ignored: no card yet
		atm.SwipeCard(h.Digest(pin)),
		atm.SwipeCard(h.Digest(pin)), // ignored: duplicate swipe
	}
	for _, k := range pin {
		actions = append(actions, atm.PressKey(k))
	}
	actions = append(actions,
		atm.PressKey(atm.KeyEnter), // authenticated
		atm.PressKey(atm.KeyOne),
		atm.PressKey(atm.KeyEnter), // withdraw 1
	)

	for _, act := range actions {
		_, err := mgr.Apply(ctx, "t1", act)
		assert.NoError(t, err)
	}

	current, err := mgr.Get(ctx, "t1")
	assert.NoError(t, err)
	assert.Equal(t, uint64(9), current.Machine.CashInside)

	rebuilt, err := Replay(h, 10, journal.events)
	assert.NoError(t, err)
	assert.True(t, rebuilt.Equal(current.Machine), "rebuilt %+v, current %+v", rebuilt, current.Machine)

	ok, err := Verify(h, 10, journal.events, current.Machine)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestReplayHandlesResetEvents(t *testing.T) {
	h := atm.NewHasher()
	journal := &memoryJournal{}
	storage := session.NewMemoryStorage()
	mgr := session.NewManager(storage, h, nil, journal, testLogger(), nil, session.Config{InitialCash: 10})
	ctx := context.Background()

	_, err := mgr.Apply(ctx, "t1", atm.SwipeCard(1234))
	assert.NoError(t, err)
	_, err = mgr.Apply(ctx, "t1", atm.PressKey(atm.KeyOne))
	assert.NoError(t, err)
	_, err = mgr.Reset(ctx, "t1")
	assert.NoError(t, err)

	rebuilt, err := Replay(h, 10, journal.events)
	assert.NoError(t, err)
	assert.True(t, rebuilt.Equal(atm.New(10)), "got %+v", rebuilt)
}

func TestVerifyDetectsDivergence(t *testing.T) {
	h := atm.NewHasher()

	events := []Event{
		{
			ID:          1,
			TerminalID:  "t1",
			ActionKind:  atm.ActionSwipeCard.String(),
			PINDigest:   1234,
			Outcome:     string(session.OutcomeSwiped),
			PhaseBefore: atm.PhaseWaiting.String(),
			PhaseAfter:  atm.PhaseAuthenticating.String(),
			CashBefore:  10,
			CashAfter:   10,
			OccurredAt:  time.Now().UTC(),
		},
	}

	// An out-of-band edit of the reserve must not verify.
	tampered := atm.Machine{CashInside: 99, Phase: atm.Authenticating(1234)}

	ok, err := Verify(h, 10, events, tampered)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReplayRejectsUnknownEvents(t *testing.T) {
	h := atm.NewHasher()

	_, err := Replay(h, 10, []Event{{ID: 7, ActionKind: "tilt"}})
	assert.Error(t, err)
}
