// Package auth guards the two entry points: HTTP Basic credentials on charge
// station upgrades and signed session cookies on operator endpoints.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
)

var (
	// ErrMissingCredentials means no parsable Authorization header was
	// presented; callers answer 400.
	ErrMissingCredentials = errors.New("missing or unparsable basic credentials")
	// ErrWrongCredentials means the header parsed but did not match;
	// callers answer 401.
	ErrWrongCredentials = errors.New("wrong basic credentials")
)

// CheckStationBasic validates a station upgrade request: the Basic user must
// equal the serial id from the URL and the password must equal the configured
// one. An empty configured password disables the check entirely.
func CheckStationBasic(r *http.Request, serialID, configuredPassword string) error {
	if configuredPassword == "" {
		return nil
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return ErrMissingCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(serialID)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(configuredPassword)) == 1
	if !userOK || !passOK {
		return ErrWrongCredentials
	}
	return nil
}
