package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cashpoint-io/atmd/internal/idempotency"
)

// cachedResponse is the journaled form of a completed request.
type cachedResponse struct {
	Status int               `json:"status"`
	Header map[string]string `json:"header"`
	Body   string            `json:"body"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key
// instead of applying the action twice. Requests without the header pass
// through untouched.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get("Idempotency-Key")
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			// The key is scoped to terminal and path so the same client key
			// on two terminals never collides.
			key := idempotency.GenerateKey(chi.URLParam(r, "terminalID"), r.URL.Path, clientKey)

			result, err := manager.Execute(r.Context(), key, ttl, func(execCtx context.Context) (interface{}, error) {
				recorder := httptest.NewRecorder()
				next.ServeHTTP(recorder, r)

				header := make(map[string]string, len(recorder.Header()))
				for name := range recorder.Header() {
					header[name] = recorder.Header().Get(name)
				}

				return cachedResponse{
					Status: recorder.Code,
					Header: header,
					Body:   recorder.Body.String(),
				}, nil
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					http.Error(w, "request already in progress", http.StatusConflict)
					return
				}

				log.Error("idempotent execute failed", slog.Any("error", err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			writeCached(w, result)
		})
	}
}

// writeCached renders the stored response whether it came straight from the
// handler or round-tripped through JSON in the store.
func writeCached(w http.ResponseWriter, result *idempotency.Result) {
	switch resp := result.Response.(type) {
	case cachedResponse:
		replayResponse(w, resp.Status, resp.Header, resp.Body, result.FromCache)
	case map[string]interface{}:
		status := http.StatusOK
		if s, ok := resp["status"].(float64); ok {
			status = int(s)
		}

		header := map[string]string{}
		if h, ok := resp["header"].(map[string]interface{}); ok {
			for name, value := range h {
				if s, ok := value.(string); ok {
					header[name] = s
				}
			}
		}

		body, _ := resp["body"].(string)
		replayResponse(w, status, header, body, result.FromCache)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func replayResponse(w http.ResponseWriter, status int, header map[string]string, body string, fromCache bool) {
	for name, value := range header {
		w.Header().Set(name, value)
	}
	if fromCache {
		w.Header().Set("Idempotency-Replay", "true")
	}

	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
