// Package ndn implements the NDN HTTP surface's shared pieces: URL grammar,
// response headers, and the resolver algorithm (spec.md §4.4), used by both
// ndnserver (serving) and ndnclient (consuming the same headers to verify).
package ndn

// Response headers emitted by ndnserver and consumed by ndnclient
// (spec.md §4.4.2).
const (
	HeaderObjId     = "cyfs-obj-id"
	HeaderObjSize   = "cyfs-obj-size"
	HeaderRootObjId = "cyfs-root-obj-id"
	HeaderPathObj   = "cyfs-path-obj"
	HeaderMtreePath = "cyfs-mtree-path"
)

// Request headers a device-signed local-zone request carries instead of an
// Authorization bearer, per SPEC_FULL §4 "Device-key-scoped trust":
// HeaderDeviceId names the signing kid, HeaderDeviceSig is the base64
// ed25519 signature over a canonicalized {method, path} descriptor.
const (
	HeaderDeviceId  = "cyfs-device-id"
	HeaderDeviceSig = "cyfs-device-sig"
)
