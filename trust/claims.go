// Package trust implements ndncore's trust & session core (spec.md §4.5):
// the verify-hub token-issuance authority (dual session/refresh JWTs,
// replay prevention, one-time-use refresh rotation), the RBAC enforcement
// entry point, and the runtime trust-key cache every service consults to
// authorize requests.
package trust

import (
	"time"

	"gopkg.in/go-jose/go-jose.v2/jwt"
)

const (
	// IssuerVerifyHub is the fixed issuer and signing kid for every
	// session/refresh token the hub mints (spec.md §4.5.1 step 3).
	IssuerVerifyHub = "verify-hub"

	// KidRoot names the zone owner key in the trust-key cache.
	KidRoot = "root"

	TokenUseSession = "session"
	TokenUseRefresh = "refresh"
	TokenUseLogin   = "login"
)

// SessionTTL and RefreshTTL are spec.md §4.5.1's "≈15 minutes" /
// "≈7 days" lifetimes.
const (
	SessionTTL = 15 * time.Minute
	RefreshTTL = 7 * 24 * time.Hour
)

// NearExpiryWindow is how close to exp a session token must be before the
// trust-key reconciliation task (spec.md §4.5.5) proactively refreshes it.
const NearExpiryWindow = 30 * time.Second

// Claims is the JWT claim set used for every token the hub issues and for
// the login credentials it accepts, covering spec.md §4.5's required set
// plus the private session/token_use claims.
type Claims struct {
	jwt.Claims

	TokenUse string `json:"token_use"`
	Session  string `json:"session,omitempty"`
}

// SessionKey is spec.md §4.5.1 step 4's `user_id + "|" + app_id + "|" + session`
// composite cache key.
func SessionKey(userId, appId, session string) string {
	return userId + "|" + appId + "|" + session
}
