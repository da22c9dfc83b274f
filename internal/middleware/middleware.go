package middleware

import (
	"net/http"
)

// ChatKey gates an endpoint behind the process-wide shared secret carried in
// the x-chat-key header. verify is the access gate's credential check.
func ChatKey(verify func(string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("x-chat-key")
			if key == "" || !verify(key) {
				http.Error(w, `{"error":"clave incorrecta"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
