package handlers

import (
	"net"
	"net/http"
	"time"
)

// logoutCookies are the client-side cookie names cleared on logout. The set
// is fixed; clearing a name the browser never set is harmless.
var logoutCookies = []string{"chatKey", "clave", "session", "io"}

// Logout expires every known cookie across the path and domain variants a
// browser may have stored them under, then returns 204 regardless.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		host = hostOnly
	}

	for _, name := range logoutCookies {
		for _, path := range []string{"/", ""} {
			for _, domain := range []string{"", host} {
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    "",
					Path:     path,
					Domain:   domain,
					Expires:  time.Unix(0, 0),
					MaxAge:   -1,
					HttpOnly: true,
				})
			}
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
