package auth

import "net/http"

// RequireSession rejects requests whose SessionHeader does not name a live
// session with 401.
func RequireSession(sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := sessions.Get(r.Header.Get(SessionHeader)); err != nil {
				respond(w, http.StatusUnauthorized, map[string]string{"error": ErrNotSignedIn.Detail})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
