package main

import (
	"crypto/ed25519"
	"encoding/json"
	"os"

	"github.com/cyfs-go/ndncore/internal/derr"
)

// zoneConfig is the bootstrap identity of the zone this instance serves
// (spec.md §6 "Environment surface"): the zone's own signing key (used to
// sign tokens as verify-hub) and the zone owner's public key (kid="root"
// in the trust-key cache).
type zoneConfig struct {
	ZoneId        string `json:"zone_id"`
	DataRoot      string `json:"data_root"`
	HubPrivateKey []byte `json:"hub_private_key"` // full 64-byte ed25519 private key, base64 via json
	HubPublicKey  []byte `json:"hub_public_key"`
	RootPublicKey []byte `json:"root_public_key"`
	ListenAddr    string `json:"listen_addr"`
}

// deviceConfig is an optional per-device identity this instance also acts
// on behalf of, for device-signed local requests (SPEC_FULL §4).
type deviceConfig struct {
	DeviceId        string `json:"device_id"`
	DevicePublicKey []byte `json:"device_public_key"`
}

// loadZoneConfig reads NDNCORE_ZONE_CONFIG (a JSON document) if set,
// falling back to <root>/zone.json, per spec.md §6.
func loadZoneConfig(root string) (zoneConfig, error) {
	var cfg zoneConfig
	if raw := os.Getenv("NDNCORE_ZONE_CONFIG"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return zoneConfig{}, derr.Wrap(derr.InvalidState, "loadZoneConfig", "NDNCORE_ZONE_CONFIG", err)
		}
		return cfg, nil
	}
	return readJSONFile(root+"/zone.json", &cfg)
}

// loadDeviceConfig reads NDNCORE_DEVICE_CONFIG, falling back to
// <root>/device.json. A missing device config is not an error: not every
// deployment serves device-signed requests.
func loadDeviceConfig(root string) (*deviceConfig, error) {
	var cfg deviceConfig
	if raw := os.Getenv("NDNCORE_DEVICE_CONFIG"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, derr.Wrap(derr.InvalidState, "loadDeviceConfig", "NDNCORE_DEVICE_CONFIG", err)
		}
		return &cfg, nil
	}
	if _, err := os.Stat(root + "/device.json"); err != nil {
		return nil, nil
	}
	if _, err := readJSONFile(root+"/device.json", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readJSONFile[T any](path string, out *T) (T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return *out, derr.Wrap(derr.IoError, "readJSONFile", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return *out, derr.Wrap(derr.InvalidState, "readJSONFile", path, err)
	}
	return *out, nil
}

func (c zoneConfig) hubKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if len(c.HubPrivateKey) != ed25519.PrivateKeySize {
		return nil, nil, derr.New(derr.InvalidState, "zoneConfig.hubKeyPair", "hub_private_key must be a 64-byte ed25519 key")
	}
	priv := ed25519.PrivateKey(c.HubPrivateKey)
	pub := priv.Public().(ed25519.PublicKey)
	return pub, priv, nil
}
