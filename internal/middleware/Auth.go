package middleware

import (
	"context"
	"net/http"
	"strings"

	"farmiot/internal/utils"

	log "github.com/sirupsen/logrus"
)

// UserIDHeader carries the caller's identity, resolved upstream by the
// identity provider.
const UserIDHeader = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// RequireUser rejects requests without X-User-ID with 401 and stores the id
// on the request context.
func RequireUser(handlerFunc http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Debug("Missing X-User-ID header")
			utils.RespondWithError(w, utils.MissingUser())
			return
		}
		handlerFunc(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// UserID returns the id stored by RequireUser, or "".
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
