package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

type devicePayload struct {
	DeviceId string `json:"device_id"`
	Nonce    int64  `json:"nonce"`
}

func TestVerifyDeviceSignedAccepts(t *testing.T) {
	hubPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	devicePub, devicePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keys, err := NewKeyCache(8, hubPub, nil)
	require.NoError(t, err)
	keys.Put("device-9", devicePub)

	payload := devicePayload{DeviceId: "device-9", Nonce: 42}
	canon, err := objid.SerializeCanonical(payload)
	require.NoError(t, err)
	sig := ed25519.Sign(devicePriv, canon)

	err = VerifyDeviceSigned(context.Background(), keys, "device-9", payload, sig)
	require.NoError(t, err)
}

func TestVerifyDeviceSignedRejectsTamperedPayload(t *testing.T) {
	hubPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	devicePub, devicePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keys, err := NewKeyCache(8, hubPub, nil)
	require.NoError(t, err)
	keys.Put("device-9", devicePub)

	payload := devicePayload{DeviceId: "device-9", Nonce: 42}
	canon, err := objid.SerializeCanonical(payload)
	require.NoError(t, err)
	sig := ed25519.Sign(devicePriv, canon)

	tampered := devicePayload{DeviceId: "device-9", Nonce: 43}
	err = VerifyDeviceSigned(context.Background(), keys, "device-9", tampered, sig)
	require.Error(t, err)
	assert.Equal(t, derr.VerifyError, derr.KindOf(err))
}

func TestVerifyDeviceSignedRejectsUnknownDevice(t *testing.T) {
	hubPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keys, err := NewKeyCache(8, hubPub, nil)
	require.NoError(t, err)

	payload := devicePayload{DeviceId: "ghost", Nonce: 1}
	err = VerifyDeviceSigned(context.Background(), keys, "ghost", payload, []byte("sig"))
	require.Error(t, err)
	assert.Equal(t, derr.NotFound, derr.KindOf(err))
}

func TestDeviceAuthenticatorAdapter(t *testing.T) {
	hubPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	devicePub, devicePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	keys, err := NewKeyCache(8, hubPub, nil)
	require.NoError(t, err)
	keys.Put("device-1", devicePub)

	auth := &DeviceAuthenticator{Keys: keys}
	payload := map[string]string{"method": "GET", "path": "/ndn/chunk:sha256:abc"}
	canon, err := objid.SerializeCanonical(payload)
	require.NoError(t, err)
	sig := ed25519.Sign(devicePriv, canon)

	require.NoError(t, auth.VerifyDevice(context.Background(), "device-1", payload, sig))

	tampered := map[string]string{"method": "GET", "path": "/ndn/other"}
	err = auth.VerifyDevice(context.Background(), "device-1", tampered, sig)
	require.Error(t, err)
	assert.Equal(t, derr.VerifyError, derr.KindOf(err))
}

func TestHubVerifierAdapter(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	hub, rootPriv := newTestHub(t, clock)

	login := signLoginJWT(t, rootPriv, "heidi", "kernel", "jti-adapter", clock.t.Add(time.Hour))
	pair, err := hub.LoginByJWT(context.Background(), login, "kernel")
	require.NoError(t, err)

	v := &HubVerifier{Hub: hub}
	userId, appId, err := v.VerifyToken(context.Background(), pair.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "heidi", userId)
	assert.Equal(t, "kernel", appId)
}

func TestHubVerifierAdapterRejectsInvalid(t *testing.T) {
	clock := &fixedClock{t: time.Unix(1000, 0)}
	hub, _ := newTestHub(t, clock)

	v := &HubVerifier{Hub: hub}
	_, _, err := v.VerifyToken(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, derr.InvalidToken, derr.KindOf(err))
}
