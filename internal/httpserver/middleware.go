package httpserver

import (
	"net/http"

	"github.com/kitman0000/UpsAndDowns/internal/httputil"
)

// InternalAuth guards the host-facing routes. The game server is the only
// caller, so a single shared token is enough.
func InternalAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Internal-Token") != token {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{Error: "invalid internal token"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
