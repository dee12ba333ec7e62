package middleware

import (
	"net/http"
	"time"

	"github.com/frahmantamala/care-access/internal"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
)

// RateLimit allows requests per window for each authenticated user, falling
// back to the client IP before authentication.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(keyByUserOrIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeAppError(w, internal.ErrRateLimited)
		}),
	)
}

func keyByUserOrIP(r *http.Request) (string, error) {
	if user := internal.UserIDFromContext(r.Context()); user != uuid.Nil {
		return "user:" + user.String(), nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
