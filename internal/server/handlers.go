package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/audit"
	apperrors "github.com/cashpoint-io/atmd/internal/errors"
	"github.com/cashpoint-io/atmd/internal/health"
	"github.com/cashpoint-io/atmd/internal/session"
	"github.com/cashpoint-io/atmd/pkg/metrics"
)

// EventReader is the slice of the audit repository the events endpoint uses.
type EventReader interface {
	EventsForTerminal(ctx context.Context, terminalID string) ([]audit.Event, error)
}

type handler struct {
	manager session.Manager
	events  EventReader
	checker *health.Checker
	errs    *apperrors.Handler
	log     *slog.Logger
}

type swipeRequest struct {
	PINDigest uint64 `json:"pin_digest"`
}

type keyRequest struct {
	Key string `json:"key"`
}

// sessionResponse is the wire form of a terminal snapshot. The expected
// digest never leaves the server.
type sessionResponse struct {
	TerminalID string    `json:"terminal_id"`
	Phase      string    `json:"phase"`
	CashInside uint64    `json:"cash_inside"`
	Register   []string  `json:"register"`
	Outcome    string    `json:"outcome,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (h *handler) swipe(w http.ResponseWriter, r *http.Request) {
	var req swipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, apperrors.NewValidationError("malformed swipe body"))
		return
	}

	h.apply(w, r, atm.SwipeCard(atm.Digest(req.PINDigest)))
}

func (h *handler) pressKey(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, apperrors.NewValidationError("malformed key body"))
		return
	}

	key, err := atm.ParseKey(req.Key)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, apperrors.NewValidationError(err.Error()))
		return
	}

	h.apply(w, r, atm.PressKey(key))
}

// apply runs one action through the session manager and renders the
// resulting snapshot.
func (h *handler) apply(w http.ResponseWriter, r *http.Request, act atm.Action) {
	terminalID := chi.URLParam(r, "terminalID")
	start := time.Now()

	result, err := h.manager.Apply(r.Context(), terminalID, act)
	if result != nil {
		metrics.RecordAction(act.Kind.String(), result.Outcome, time.Since(start))
	}

	switch {
	case errors.Is(err, session.ErrTooManyPINAttempts):
		// The session was reset; report the fresh snapshot with 429 so the
		// terminal can show a lockout screen.
		writeJSON(w, http.StatusTooManyRequests, toResponse(result.Session, result.Outcome))
	case errors.Is(err, session.ErrSessionLocked):
		h.writeError(w, r, http.StatusConflict, apperrors.NewStateError("another action is in flight for this terminal"))
	case err != nil:
		h.writeError(w, r, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, toResponse(result.Session, result.Outcome))
	}
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")

	sess, err := h.manager.Reset(r.Context(), terminalID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(sess, session.OutcomeReset))
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalID")

	sess, err := h.manager.Get(r.Context(), terminalID)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		h.writeError(w, r, http.StatusNotFound, apperrors.NewStateError("terminal has no session"))
	case err != nil:
		h.writeError(w, r, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, toResponse(sess, ""))
	}
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		h.writeError(w, r, http.StatusNotFound, apperrors.NewStateError("audit journal is not configured"))
		return
	}

	terminalID := chi.URLParam(r, "terminalID")

	events, err := h.events.EventsForTerminal(r.Context(), terminalID)
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
		return
	}

	results := h.checker.Check(r.Context())

	status := http.StatusOK
	for _, state := range results {
		if state != "OK" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, status, results)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	userMessage, retryable := h.errs.Handle(r.Context(), err)
	writeJSON(w, status, errorResponse{Error: userMessage, Retryable: retryable})
}

func toResponse(sess *session.Session, outcome session.Outcome) sessionResponse {
	register := make([]string, 0, len(sess.Machine.Register))
	for _, k := range sess.Machine.Register {
		register = append(register, k.String())
	}

	return sessionResponse{
		TerminalID: sess.TerminalID,
		Phase:      sess.Machine.Phase.Kind.String(),
		CashInside: sess.Machine.CashInside,
		Register:   register,
		Outcome:    string(outcome),
		UpdatedAt:  sess.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
