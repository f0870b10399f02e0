package trust

import (
	"context"
	"crypto/ed25519"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

// VerifyDeviceSigned verifies a request signed directly by a per-device
// key (kid == deviceId), bypassing verify-hub entirely. This is the
// device-key-scoped local-zone fast path: the original distinguishes
// kid="root" (zone owner) from per-device keys issued to end-user devices,
// and spec.md's trust-key cache already names both as populated kids;
// ndnserver consults this before falling back to bearer-JWT verification.
// payload is canonicalized the same way object/value identifiers are
// (objid.SerializeCanonical) so the signed bytes are unambiguous regardless
// of map key order.
func VerifyDeviceSigned(ctx context.Context, keys *KeyCache, deviceId string, payload any, sig []byte) error {
	pub, err := keys.Get(ctx, deviceId)
	if err != nil {
		return err
	}
	canon, err := objid.SerializeCanonical(payload)
	if err != nil {
		return derr.Wrap(derr.ReasonError, "trust.VerifyDeviceSigned", "", err)
	}
	if !ed25519.Verify(pub, canon, sig) {
		return derr.New(derr.VerifyError, "trust.VerifyDeviceSigned", "device signature mismatch for "+deviceId)
	}
	return nil
}

// DeviceAuthenticator adapts a KeyCache to ndnserver.DeviceVerifier,
// completing the device-signed local-zone fast path's wiring into the HTTP
// surface.
type DeviceAuthenticator struct {
	Keys *KeyCache
}

func (d *DeviceAuthenticator) VerifyDevice(ctx context.Context, deviceId string, payload any, sig []byte) error {
	return VerifyDeviceSigned(ctx, d.Keys, deviceId, payload, sig)
}

// HubVerifier adapts a Hub to ndnserver.TokenVerifier, completing
// spec.md §4.4.5's cross-zone authentication wiring: the HTTP surface
// authenticates every request through C5 before resolving the URL.
type HubVerifier struct {
	Hub *Hub
}

func (v *HubVerifier) VerifyToken(ctx context.Context, bearer string) (userId, appId string, err error) {
	claims, err := v.Hub.VerifyToken(bearer, "")
	if err != nil {
		return "", "", err
	}
	if len(claims.Audience) > 0 {
		appId = claims.Audience[0]
	}
	return claims.Subject, appId, nil
}
