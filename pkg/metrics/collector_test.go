package metrics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/session"
)

// stubManager serves canned sessions or a canned error.
type stubManager struct {
	sessions []*session.Session
	err      error
}

func (m *stubManager) Apply(context.Context, string, atm.Action) (*session.Result, error) {
	return nil, errors.New("not implemented")
}

func (m *stubManager) Get(context.Context, string) (*session.Session, error) {
	return nil, session.ErrSessionNotFound
}

func (m *stubManager) Reset(context.Context, string) (*session.Session, error) {
	return nil, errors.New("not implemented")
}

func (m *stubManager) SweepIdle(context.Context, time.Duration) (int, error) {
	return 0, nil
}

func (m *stubManager) All(context.Context) ([]*session.Session, error) {
	return m.sessions, m.err
}

func TestCollectGathersFleet(t *testing.T) {
	mgr := &stubManager{sessions: []*session.Session{
		{TerminalID: "atm-1", Machine: atm.New(100)},
		{TerminalID: "atm-2", Machine: atm.New(50)},
	}}

	c := NewFleetCollector(mgr, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, c.collect(context.Background()))
}

func TestRunLogsFailedCollection(t *testing.T) {
	var buf bytes.Buffer
	mgr := &stubManager{err: errors.New("redis gone")}
	c := NewFleetCollector(mgr, slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Run(ctx)

	assert.Contains(t, buf.String(), "fleet metrics collection failed")
	assert.Contains(t, buf.String(), "redis gone")
}
