package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashpoint-io/atmd/internal/atm"
	"github.com/cashpoint-io/atmd/internal/session"
)

// decimalHasher folds digits decimally so digests read like PINs in tests.
var decimalHasher = atm.HasherFunc(func(keys []atm.Key) atm.Digest {
	var d atm.Digest
	for _, k := range keys {
		d = d*10 + atm.Digest(k.Digit())
	}
	return d
})

func testRouter(t *testing.T) http.Handler {
	t.Helper()

	mgr := session.NewManager(
		session.NewMemoryStorage(),
		decimalHasher,
		nil,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		nil,
		session.Config{InitialCash: 100},
	)

	return NewRouter(Options{
		Manager: mgr,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, sessionResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp sessionResponse
	if rec.Code < 300 && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}

	return rec, resp
}

func TestFullWithdrawalOverHTTP(t *testing.T) {
	router := testRouter(t)
	base := "/v1/terminals/atm-1"

	// PIN 12, amount 42.
	digest := decimalHasher.Digest([]atm.Key{atm.KeyOne, atm.KeyTwo})

	rec, resp := doJSON(t, router, http.MethodPost, base+"/swipe", swipeRequest{PINDigest: uint64(digest)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "authenticating", resp.Phase)
	assert.Equal(t, "swiped", resp.Outcome)

	for _, label := range []string{"one", "two"} {
		rec, resp = doJSON(t, router, http.MethodPost, base+"/keys", keyRequest{Key: label})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pin_digit", resp.Outcome)
	}

	rec, resp = doJSON(t, router, http.MethodPost, base+"/keys", keyRequest{Key: "enter"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "authenticated", resp.Phase)
	assert.Empty(t, resp.Register)

	for _, label := range []string{"four", "two"} {
		rec, resp = doJSON(t, router, http.MethodPost, base+"/keys", keyRequest{Key: label})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "amount_digit", resp.Outcome)
	}

	rec, resp = doJSON(t, router, http.MethodPost, base+"/keys", keyRequest{Key: "enter"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dispensed", resp.Outcome)
	assert.Equal(t, "waiting", resp.Phase)
	assert.Equal(t, uint64(58), resp.CashInside)
}

func TestSwipeRejectsMalformedBody(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/terminals/atm-1/swipe", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPressKeyRejectsUnknownLabel(t *testing.T) {
	router := testRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/v1/terminals/atm-1/keys", keyRequest{Key: "zero"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotUnknownTerminalReturns404(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/terminals/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetReturnsWaitingSnapshot(t *testing.T) {
	router := testRouter(t)
	base := "/v1/terminals/atm-7"

	rec, _ := doJSON(t, router, http.MethodPost, base+"/swipe", swipeRequest{PINDigest: 12})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := doJSON(t, router, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "waiting", resp.Phase)
	assert.Equal(t, "reset", resp.Outcome)
	assert.Equal(t, uint64(100), resp.CashInside)
}

func TestSnapshotNeverExposesDigest(t *testing.T) {
	router := testRouter(t)
	base := "/v1/terminals/atm-2"

	rec, _ := doJSON(t, router, http.MethodPost, base+"/swipe", swipeRequest{PINDigest: 4321})
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, base, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	assert.NotContains(t, getRec.Body.String(), "4321")
	assert.NotContains(t, getRec.Body.String(), "digest")
}

func TestHealthzWithoutCheckerIsOK(t *testing.T) {
	router := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpointExposed(t *testing.T) {
	router := testRouter(t)

	// Serve one request first so the counters exist.
	_, _ = doJSON(t, router, http.MethodPost, "/v1/terminals/atm-9/swipe", swipeRequest{PINDigest: 1})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "atm_actions_total")
}
