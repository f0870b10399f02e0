package trust

import (
	"crypto/ed25519"
	"time"

	"gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"

	"github.com/cyfs-go/ndncore/internal/derr"
)

// allowedAlg is the fixed algorithm allowlist (spec.md §4.6 "Algorithm
// allowlist is fixed at build time; runtime downgrade to HS256 is
// disallowed"). EdDSA is the only signing algorithm the hub and the trust
// chain ever use.
const allowedAlg = string(jose.EdDSA)

// signToken signs claims with priv under header kid, following the
// verify-hub pattern (jose.SigningKey{Algorithm: EdDSA} plus an ExtraHeaders
// "kid", then jwt.Signed(signer).Claims(...).CompactSerialize()).
func signToken(c Claims, kid string, priv ed25519.PrivateKey) (string, error) {
	signingKey := jose.SigningKey{Algorithm: jose.EdDSA, Key: priv}
	opts := &jose.SignerOptions{ExtraHeaders: map[jose.HeaderKey]interface{}{
		"kid": kid,
	}}
	signer, err := jose.NewSigner(signingKey, opts)
	if err != nil {
		return "", derr.Wrap(derr.ReasonError, "trust.signToken", "", err)
	}
	raw, err := jwt.Signed(signer).Claims(c).CompactSerialize()
	if err != nil {
		return "", derr.Wrap(derr.ReasonError, "trust.signToken", "", err)
	}
	return raw, nil
}

// parseHeader extracts the single signature header of a compact JWS,
// rejecting anything not using the allowed algorithm.
func parseHeader(raw string) (*jwt.JSONWebToken, jose.Header, error) {
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return nil, jose.Header{}, derr.Wrap(derr.InvalidToken, "trust.parseHeader", "", err)
	}
	if len(tok.Headers) != 1 {
		return nil, jose.Header{}, derr.New(derr.InvalidToken, "trust.parseHeader", "malformed JWS")
	}
	h := tok.Headers[0]
	if h.Algorithm != allowedAlg {
		return nil, jose.Header{}, derr.New(derr.InvalidToken, "trust.parseHeader", "algorithm not allowed: "+h.Algorithm)
	}
	return tok, h, nil
}

// verifyWith checks raw's signature against key and unmarshals its claims,
// without validating exp/iss/aud — callers apply those checks themselves so
// the error they surface distinguishes "bad signature" from "policy reject".
func verifyWith(raw string, key ed25519.PublicKey) (*jwt.JSONWebToken, Claims, error) {
	tok, _, err := parseHeader(raw)
	if err != nil {
		return nil, Claims{}, err
	}
	var claims Claims
	if err := tok.Claims(key, &claims); err != nil {
		return nil, Claims{}, derr.Wrap(derr.InvalidToken, "trust.verifyWith", "", err)
	}
	return tok, claims, nil
}

// checkExpiry enforces exp > now, the one timing check spec.md applies
// uniformly to both login credentials and verify-hub-issued tokens.
func checkExpiry(c Claims, now time.Time) error {
	if c.Claims.Expiry == nil || !now.Before(c.Claims.Expiry.Time()) {
		return derr.New(derr.InvalidToken, "trust", "token expired")
	}
	return nil
}
