package http

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
)

// Credentials guard the /system surface, playing the role of the bank's
// terminal credentials.
type Credentials struct {
	Username string
	Password string
}

// BasicAuth rejects requests whose basic-auth pair does not match creds.
// Hashes are compared instead of the raw strings so the comparison is
// constant-time regardless of input length.
func BasicAuth(creds Credentials, next http.Handler) http.Handler {
	wantUser := sha256.Sum256([]byte(creds.Username))
	wantPass := sha256.Sum256([]byte(creds.Password))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok {
			gotUser := sha256.Sum256([]byte(user))
			gotPass := sha256.Sum256([]byte(pass))
			userOK := subtle.ConstantTimeCompare(wantUser[:], gotUser[:]) == 1
			passOK := subtle.ConstantTimeCompare(wantPass[:], gotPass[:]) == 1
			if userOK && passOK {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="acquisim system api"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}
