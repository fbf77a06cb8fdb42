// Package session defines the capability session issued in exchange for
// claims from the external identity provider.
package session

import "time"

// Claims is the opaque identity the external provider vouches for.
type Claims struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Session is a stored capability. Only a bcrypt hash of the token secret
// is kept; the raw token is handed to the client once and never stored.
type Session struct {
	ID         string
	SecretHash []byte
	Claims     Claims
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
