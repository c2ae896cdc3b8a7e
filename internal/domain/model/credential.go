package model

import "time"

// Credential is the session material issued by the remote diary service.
// Its shape is owned by the service; the application only ever stores it
// sealed and hands it back to the diary client.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Challenge is a pending second-factor step (SMS or authenticator app code)
// returned by a login that cannot complete on username and password alone.
type Challenge struct {
	ID        string
	Username  string
	ExpiresAt time.Time
}

// Expired reports whether the credential's lifetime has ended at now. A
// credential without a known expiry never expires locally.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Expired reports whether the challenge can no longer be completed at now.
func (c Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
