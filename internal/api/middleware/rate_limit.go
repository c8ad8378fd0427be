package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayo6706/paynxt/internal/api/problem"
	"github.com/go-chi/httprate"
)

// PublicRateLimiter limits requests per IP for the register and login routes.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(limitExceeded(rps, "IP")),
	)
}

// AuthRateLimiter limits authenticated callers by account id. It must run
// after AuthMiddleware; requests without an account fall back to the IP.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if accountID, ok := AccountIDFromContext(r.Context()); ok {
				return "account:" + accountID.String(), nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(limitExceeded(rps, "account")),
	)
}

func limitExceeded(rps int, scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(
			w,
			r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("Rate limit of %d req/s exceeded for this %s", rps, scope),
		)
	}
}
