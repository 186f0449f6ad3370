package mod

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
)

var uname, passw [32]byte

// HandlePProf mounts the pprof handlers behind basic auth.
func HandlePProf(username, password string, r *http.ServeMux) {
	uname = sha256.Sum256([]byte(username))
	passw = sha256.Sum256([]byte(password))

	r.HandleFunc("/debug/pprof/", basicAuth(pprof.Index))
	r.HandleFunc("/debug/pprof/cmdline", basicAuth(pprof.Cmdline))
	r.HandleFunc("/debug/pprof/profile", basicAuth(pprof.Profile))
	r.HandleFunc("/debug/pprof/symbol", basicAuth(pprof.Symbol))
	r.HandleFunc("/debug/pprof/trace", basicAuth(pprof.Trace))
}

func basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if ok {
			usernameHash := sha256.Sum256([]byte(username))
			passwordHash := sha256.Sum256([]byte(password))

			usernameMatch := subtle.ConstantTimeCompare(usernameHash[:], uname[:]) == 1
			passwordMatch := subtle.ConstantTimeCompare(passwordHash[:], passw[:]) == 1

			if usernameMatch && passwordMatch {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
}
