package handlers

import (
	"golang.org/x/crypto/bcrypt"
)

// Mode selects which authorization path the access gate applies. Exactly one
// is active per process.
type Mode string

const (
	// ModeOpen authorizes every connection immediately, no credential.
	ModeOpen Mode = "open"
	// ModeSecret requires an "auth" event whose clave matches the shared
	// secret. Mismatch gets a denial event and a delayed forced close.
	ModeSecret Mode = "secret"
	// ModeJoin requires a "join" event with a display name and the shared
	// secret in one payload; failure disconnects immediately.
	ModeJoin Mode = "join"
)

// ParseMode maps a config string to a Mode, defaulting to shared-secret.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeOpen, ModeSecret, ModeJoin:
		return Mode(s)
	default:
		return ModeSecret
	}
}

// Gate holds the process-wide access policy. The shared secret is kept only
// as a bcrypt hash so credential checks are not timing-sensitive.
type Gate struct {
	mode       Mode
	secretHash []byte
}

func NewGate(mode Mode, secret string) (*Gate, error) {
	g := &Gate{mode: mode}
	if mode != ModeOpen {
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		g.secretHash = hash
	}
	return g, nil
}

func (g *Gate) Mode() Mode { return g.mode }

// Verify reports whether the supplied credential equals the shared secret.
// Always false in open mode — open mode never consults a credential.
func (g *Gate) Verify(credential string) bool {
	if g.secretHash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.secretHash, []byte(credential)) == nil
}
