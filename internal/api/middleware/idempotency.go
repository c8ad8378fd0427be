package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ayo6706/paynxt/internal/api/problem"
	"github.com/ayo6706/paynxt/internal/idempotency"
	"github.com/ayo6706/paynxt/internal/observability"
	"go.uber.org/zap"
)

const (
	idempotencyHeader       = "Idempotency-Key"
	replayHeader            = "X-Idempotent-Replay"
	maxIdempotencyKeyLength = 255
)

// IdempotencyMiddleware requires an Idempotency-Key on mutating requests and
// replays the first response for repeated attempts. A nil store disables it.
func IdempotencyMiddleware(store *idempotency.Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyHeader)
			switch {
			case key == "":
				observability.IncrementIdempotencyEvent("missing_key")
				badRequest(w, r, "idempotency/missing-key", idempotencyHeader+" header is required")
				return
			case len(key) > maxIdempotencyKeyLength:
				observability.IncrementIdempotencyEvent("invalid_key")
				badRequest(w, r, "idempotency/invalid-key", fmt.Sprintf("%s must be at most %d characters", idempotencyHeader, maxIdempotencyKeyLength))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				badRequest(w, r, "request/invalid-body", "Failed to read request body")
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			rec, claim, err := store.Begin(r.Context(), idempotency.Request{
				Key:    key,
				Actor:  UserIDFromContext(r.Context()),
				Method: r.Method,
				Path:   r.URL.Path,
				Body:   body,
			})
			switch {
			case errors.Is(err, idempotency.ErrHashMismatch):
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/key-conflict"), http.StatusText(http.StatusConflict), "Idempotency-Key was already used for a different request")
				return
			case errors.Is(err, idempotency.ErrInProgress):
				problem.Write(w, r, http.StatusConflict, problem.Type("idempotency/in-progress"), http.StatusText(http.StatusConflict), "A request with this Idempotency-Key is still being processed")
				return
			case err != nil:
				logger.Error("idempotency unavailable", zap.String("key", key), zap.Error(err))
				problem.Write(w, r, http.StatusInternalServerError, problem.Type("idempotency/unavailable"), http.StatusText(http.StatusInternalServerError), "idempotency unavailable")
				return
			case rec != nil:
				w.Header().Set("Content-Type", rec.ContentType)
				w.Header().Set(replayHeader, rec.ServedBy)
				w.WriteHeader(rec.Status)
				_, _ = w.Write(rec.Body)
				return
			}

			finishCtx := context.WithoutCancel(r.Context())
			finish := func(status int, body []byte, contentType string) {
				if err := claim.Complete(finishCtx, status, body, contentType); err != nil {
					logger.Warn("idempotency finalize failed", zap.String("key", key), zap.Error(err))
				}
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			handled := false
			defer func() {
				if handled {
					return
				}
				// The handler panicked; record the 500 the recover middleware
				// sends so retries replay it instead of hitting an open claim.
				p := recover()
				finish(http.StatusInternalServerError, panicProblem(r), "application/problem+json")
				if p != nil {
					panic(p)
				}
			}()
			next.ServeHTTP(capture, r)
			handled = true

			contentType := capture.Header().Get("Content-Type")
			if contentType == "" {
				contentType = "application/json"
			}
			finish(capture.status, capture.body.Bytes(), contentType)
		})
	}
}

func panicProblem(r *http.Request) []byte {
	body, _ := json.Marshal(problem.Details{
		Type:     problem.Type("internal-server-error"),
		Title:    http.StatusText(http.StatusInternalServerError),
		Status:   http.StatusInternalServerError,
		Detail:   "unexpected server error",
		Instance: r.URL.Path,
	})
	return body
}

func badRequest(w http.ResponseWriter, r *http.Request, kind, detail string) {
	problem.Write(w, r, http.StatusBadRequest, problem.Type(kind), http.StatusText(http.StatusBadRequest), detail)
}

// captureWriter tees the response so it can be stored for replay.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
