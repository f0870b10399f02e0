package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/go-jose/go-jose.v2/jwt"

	"github.com/cyfs-go/ndncore/internal/derr"
)

// TokenPair is what login/refresh return (spec.md §4.5.1 step 5).
type TokenPair struct {
	SessionToken string
	RefreshToken string
}

// PasswordLookup resolves a username to its stored password hash and user
// type, standing in for the system-config-service lookup
// handle_login_by_password performs; out of scope for this module, so
// callers supply their own backing store.
type PasswordLookup interface {
	Lookup(ctx context.Context, username string) (storedHash, userType string, err error)
}

// HubConfig configures a Hub.
type HubConfig struct {
	PrivateKey     ed25519.PrivateKey
	PublicKey      ed25519.PublicKey
	Keys           *KeyCache
	AllowedIssuers []string
	Passwords      PasswordLookup

	// Now is the injectable clock; defaults to time.Now.
	Now func() time.Time
}

// Hub is the verify-hub token-issuance authority (spec.md §4.5).
type Hub struct {
	priv      ed25519.PrivateKey
	pub       ed25519.PublicKey
	keys      *KeyCache
	issuers   map[string]bool
	passwords PasswordLookup
	now       func() time.Time

	sessions *tokenCache
	refresh  *tokenCache
	// loginReplay marks login-JWT session_keys (userid|appid|jti) already
	// redeemed, independent of the session cache so a first login and a
	// later-rotated refresh never share a slot.
	loginReplay *tokenCache
}

// NewHub constructs a Hub. cfg.Keys must already contain the verify-hub
// public key (NewKeyCache seeds it automatically).
func NewHub(cfg HubConfig) *Hub {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	issuers := make(map[string]bool, len(cfg.AllowedIssuers))
	for _, iss := range cfg.AllowedIssuers {
		issuers[iss] = true
	}
	return &Hub{
		priv:        cfg.PrivateKey,
		pub:         cfg.PublicKey,
		keys:        cfg.Keys,
		issuers:     issuers,
		passwords:   cfg.Passwords,
		now:         now,
		sessions:    newTokenCache(),
		refresh:     newTokenCache(),
		loginReplay: newTokenCache(),
	}
}

// gc drops expired entries from every cache; called at the top of each
// public entry point, mirroring gc_token_caches().
func (h *Hub) gc() {
	now := h.now()
	h.sessions.gc(now)
	h.refresh.gc(now)
	h.loginReplay.gc(now)
}

func (h *Hub) issueTokenPair(userId, appId, session string) (TokenPair, string, string, error) {
	now := h.now()

	sessionJti := uuid.NewString()
	sessionClaims := Claims{
		Claims:   claimsFor(userId, appId, sessionJti, now, SessionTTL),
		Session:  session,
		TokenUse: TokenUseSession,
	}
	sessionToken, err := signToken(sessionClaims, IssuerVerifyHub, h.priv)
	if err != nil {
		return TokenPair{}, "", "", err
	}

	refreshJti := uuid.NewString()
	refreshClaims := Claims{
		Claims:   claimsFor(userId, appId, refreshJti, now, RefreshTTL),
		Session:  session,
		TokenUse: TokenUseRefresh,
	}
	refreshToken, err := signToken(refreshClaims, IssuerVerifyHub, h.priv)
	if err != nil {
		return TokenPair{}, "", "", err
	}

	pair := TokenPair{SessionToken: sessionToken, RefreshToken: refreshToken}
	sessionKey := SessionKey(userId, appId, session)
	h.sessions.put(sessionKey, cachedToken{Jti: sessionJti, Token: sessionToken, Exp: now.Add(SessionTTL)})
	h.refresh.put(sessionKey, cachedToken{Jti: refreshJti, Token: refreshToken, Exp: now.Add(RefreshTTL)})
	return pair, sessionJti, refreshJti, nil
}

func claimsFor(userId, appId, jti string, now time.Time, ttl time.Duration) jwt.Claims {
	return jwt.Claims{
		Subject:  userId,
		Audience: jwt.Audience{appId},
		ID:       jti,
		Issuer:   IssuerVerifyHub,
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt: jwt.NewNumericDate(now),
	}
}

// LoginByJWT implements login_by_jwt (spec.md §4.5.1) and its refresh
// variant (spec.md §4.5.2): a JWT whose token_use is "refresh" is routed to
// the refresh flow; anything else is treated as a first-login credential.
func (h *Hub) LoginByJWT(ctx context.Context, rawJWT string, targetApp string) (TokenPair, error) {
	h.gc()

	_, header, err := parseHeader(rawJWT)
	if err != nil {
		return TokenPair{}, err
	}

	// A refresh token is always verified against the verify-hub key alone,
	// never the broader trust chain (spec.md §4.5.2 step 1).
	var claims Claims
	if header.KeyID == IssuerVerifyHub {
		_, claims, err = verifyWith(rawJWT, h.pub)
	} else {
		key, kerr := h.keys.Get(ctx, header.KeyID)
		if kerr != nil {
			return TokenPair{}, kerr
		}
		_, claims, err = verifyWith(rawJWT, key)
	}
	if err != nil {
		return TokenPair{}, err
	}

	if claims.TokenUse == TokenUseRefresh {
		if header.KeyID != IssuerVerifyHub {
			return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "refresh token not signed by verify-hub")
		}
		return h.refreshFlow(claims)
	}
	return h.loginFlow(claims, targetApp)
}

func (h *Hub) loginFlow(claims Claims, targetApp string) (TokenPair, error) {
	now := h.now()

	if !h.issuers[claims.Issuer] {
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "issuer not trusted: "+claims.Issuer)
	}
	if targetApp != "" && !audienceContains(claims.Audience, targetApp) {
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "aud mismatch")
	}
	if err := checkExpiry(claims, now); err != nil {
		return TokenPair{}, err
	}

	userId := claims.Subject
	appId := targetApp
	if appId == "" && len(claims.Audience) > 0 {
		appId = claims.Audience[0]
	}

	replayKey := SessionKey(userId, appId, claims.ID)
	if _, seen := h.loginReplay.get(replayKey); seen {
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "login JWT already used")
	}
	h.loginReplay.put(replayKey, cachedToken{Jti: claims.ID, Exp: claims.Expiry.Time()})

	session := uuid.NewString()
	pair, _, _, err := h.issueTokenPair(userId, appId, session)
	return pair, err
}

func (h *Hub) refreshFlow(claims Claims) (TokenPair, error) {
	now := h.now()
	if err := checkExpiry(claims, now); err != nil {
		return TokenPair{}, err
	}
	if claims.Session == "" {
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "missing session")
	}

	userId := claims.Subject
	appId := ""
	if len(claims.Audience) > 0 {
		appId = claims.Audience[0]
	}
	sessionKey := SessionKey(userId, appId, claims.Session)

	cached, ok := h.refresh.get(sessionKey)
	if !ok {
		// Absence means the refresh was already redeemed or never issued:
		// treat as a possible replay and revoke the whole session (spec.md
		// §4.5.2 step 2).
		h.revokeSession(sessionKey)
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "refresh token not found or already invalidated")
	}
	if subtle.ConstantTimeCompare([]byte(cached.Jti), []byte(claims.ID)) != 1 {
		h.revokeSession(sessionKey)
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByJWT", "refresh token jti mismatch")
	}

	// One-time use: invalidate before issuing the replacement pair.
	h.refresh.remove(sessionKey)

	pair, _, _, err := h.issueTokenPair(userId, appId, claims.Session)
	return pair, err
}

func (h *Hub) revokeSession(sessionKey string) {
	h.sessions.remove(sessionKey)
	h.refresh.remove(sessionKey)
}

// LoginByPassword implements login_by_password (spec.md §4.5.1): the
// client sends base64(SHA256(stored_password + nonce)); nonce is a
// millisecond unix timestamp bounded to an 8-hour skew window.
func (h *Hub) LoginByPassword(ctx context.Context, username, appId string, nonce int64, passwordHashB64 string) (TokenPair, error) {
	h.gc()

	if h.passwords == nil {
		return TokenPair{}, derr.New(derr.ReasonError, "trust.LoginByPassword", "no password backend configured")
	}

	nowMs := h.now().UnixMilli()
	skew := nowMs - nonce
	if skew < 0 {
		skew = -skew
	}
	if skew > int64((8*time.Hour)/time.Millisecond) {
		return TokenPair{}, derr.New(derr.ReasonError, "trust.LoginByPassword", "nonce too old")
	}

	storedHash, _, err := h.passwords.Lookup(ctx, username)
	if err != nil {
		return TokenPair{}, derr.New(derr.NotFound, "trust.LoginByPassword", "user not found: "+username)
	}

	want, err := computePasswordHash(storedHash, nonce)
	if err != nil {
		return TokenPair{}, err
	}
	got, err := base64.StdEncoding.DecodeString(passwordHashB64)
	if err != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return TokenPair{}, derr.New(derr.InvalidToken, "trust.LoginByPassword", "invalid password")
	}

	session := uuid.NewString()
	pair, _, _, err := h.issueTokenPair(username, appId, session)
	return pair, err
}

func computePasswordHash(storedHash string, nonce int64) ([]byte, error) {
	salt := storedHash + strconv.FormatInt(nonce, 10)
	sum := sha256.Sum256([]byte(salt))
	return sum[:], nil
}

// VerifyToken implements verify_token (spec.md §4.5.3).
func (h *Hub) VerifyToken(rawJWT string, expectedAud string) (Claims, error) {
	_, header, err := parseHeader(rawJWT)
	if err != nil {
		return Claims{}, err
	}
	if header.KeyID != IssuerVerifyHub {
		return Claims{}, derr.New(derr.InvalidToken, "trust.VerifyToken", "kid not allowed")
	}
	_, claims, err := verifyWith(rawJWT, h.pub)
	if err != nil {
		return Claims{}, err
	}
	if claims.Issuer != IssuerVerifyHub {
		return Claims{}, derr.New(derr.InvalidToken, "trust.VerifyToken", "bad issuer")
	}
	if claims.TokenUse != TokenUseSession {
		return Claims{}, derr.New(derr.InvalidToken, "trust.VerifyToken", "not a session token")
	}
	if err := checkExpiry(claims, h.now()); err != nil {
		return Claims{}, err
	}
	if expectedAud != "" && !audienceContains(claims.Audience, expectedAud) {
		return Claims{}, derr.New(derr.InvalidToken, "trust.VerifyToken", "aud mismatch")
	}
	return claims, nil
}

// RefreshNearExpiry proactively rotates every session within
// NearExpiryWindow of expiry, the behavior spec.md §4.5.5 assigns to the
// periodic trust-key reconciliation task. It returns the count rotated.
func (h *Hub) RefreshNearExpiry() int {
	now := h.now()
	due := h.sessions.nearExpiry(now, NearExpiryWindow)

	rotated := 0
	for _, sessionKey := range due {
		parts := strings.SplitN(sessionKey, "|", 3)
		if len(parts) != 3 {
			continue
		}
		userId, appId, session := parts[0], parts[1], parts[2]
		if _, _, _, err := h.issueTokenPair(userId, appId, session); err == nil {
			rotated++
		}
	}
	return rotated
}

func audienceContains(aud []string, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
