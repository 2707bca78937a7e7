package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// CallbackToken guards the gateway webhook with a shared secret carried in
// the ?token= query parameter of the registered callback URL. An empty
// secret disables the check.
//
// Rejections still answer in the gateway's acknowledgement format so the
// gateway records a definitive failure.
func CallbackToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{
					"ResultCode": 1,
					"ResultDesc": "Unauthorized",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
