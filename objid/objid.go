// Package objid implements ObjId and ChunkId, the self-describing content
// identifiers every chunk and object in ndncore is named by, plus canonical
// JSON serialization of objects.
package objid

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cyfs-go/ndncore/hash"
)

// ChunkObjType and MixObjType are the two chunk-id flavors (spec.md §3).
const (
	ChunkObjType = "chunk"
	MixObjType   = "mix"
)

// mixLenPrefix is the number of leading digest bytes a "mix" chunk id
// dedicates to carrying the chunk's declared length.
const mixLenPrefix = 6

// ObjId is the universal identifier (obj_type, hash_method, digest).
type ObjId struct {
	ObjType string
	Method  hash.Method
	Digest  hash.Hash
}

// String returns the canonical "{obj_type}:{base32(digest)}" form. The hash
// method is appended as a second segment only when it is not the default
// (Sha256), so existing sha256-only ids keep their compact form.
func (id ObjId) String() string {
	if id.Method == hash.Sha256 {
		return id.ObjType + ":" + id.Digest.String()
	}
	return fmt.Sprintf("%s:%s:%s", id.ObjType, id.Method, id.Digest.String())
}

// IsZero reports whether id is the unset ObjId.
func (id ObjId) IsZero() bool {
	return id.ObjType == "" && id.Digest.IsEmpty()
}

// Parse parses the canonical string form of an ObjId, rejecting unknown
// prefixes, malformed base32, or a digest of the wrong length.
func Parse(s string) (ObjId, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 2:
		objType, digestStr := parts[0], parts[1]
		if objType == "" {
			return ObjId{}, &InvalidIdError{Reason: "empty obj_type", Input: s}
		}
		d, ok := hash.MaybeParse(digestStr)
		if !ok {
			return ObjId{}, &InvalidIdError{Reason: "bad digest", Input: s}
		}
		return ObjId{ObjType: objType, Method: hash.Sha256, Digest: d}, nil
	case 3:
		objType, methodStr, digestStr := parts[0], parts[1], parts[2]
		m, ok := hash.ParseMethod(methodStr)
		if !ok {
			return ObjId{}, &InvalidIdError{Reason: "unknown hash method " + methodStr, Input: s}
		}
		d, ok := hash.MaybeParse(digestStr)
		if !ok {
			return ObjId{}, &InvalidIdError{Reason: "bad digest", Input: s}
		}
		return ObjId{ObjType: objType, Method: m, Digest: d}, nil
	default:
		return ObjId{}, &InvalidIdError{Reason: "malformed id", Input: s}
	}
}

// LooksLikeObjId reports whether the first URL segment of an NDN request is
// an ObjId (vs. a human obj-path component) — distinguished, per spec.md
// §4.4.1, by the presence of the "{obj_type}:" prefix. The whole segment
// must also parse as an ObjId; a segment with that prefix that does not
// parse counts as an obj-path component.
func LooksLikeObjId(segment string) bool {
	i := strings.IndexByte(segment, ':')
	if i <= 0 {
		return false
	}
	_, err := Parse(segment)
	return err == nil
}

// MarshalJSON renders an ObjId as its canonical string form, so descriptors
// that embed ObjId (e.g. tom's persisted trie) read as plain JSON strings
// rather than a {ObjType, Method, Digest} object.
func (id ObjId) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *ObjId) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*id = ObjId{}
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// InvalidIdError reports a parse failure or an id/content mismatch.
type InvalidIdError struct {
	Reason string
	Input  string
}

func (e *InvalidIdError) Error() string {
	return fmt.Sprintf("objid: invalid id %q: %s", e.Input, e.Reason)
}

// ChunkId is a specialization of ObjId naming an immutable byte sequence.
type ChunkId struct {
	ObjId
}

// ComputeChunkId returns the plain ChunkId of b under method m.
func ComputeChunkId(b []byte, m hash.Method) ChunkId {
	return ChunkId{ObjId{ObjType: ChunkObjType, Method: m, Digest: hash.OfWithMethod(b, m)}}
}

// ComputeMixChunkId packs length into the leading mixLenPrefix bytes of the
// returned digest; the remaining bytes are the low-order bytes of the plain
// hash of b. This lets a peer learn the expected length from the id alone,
// without fetching metadata, per spec.md §3/§4.1.
func ComputeMixChunkId(length uint64, b []byte, m hash.Method) ChunkId {
	raw := hash.OfWithMethod(b, m)
	return ChunkId{ObjId{ObjType: MixObjType, Method: m, Digest: mixDigest(length, raw)}}
}

// MixChunkIdFromDigest builds the mix ChunkId for a payload of the given
// length whose plain digest (hash.OfWithMethod over the payload) is raw,
// without requiring the original bytes. Streaming verifiers that hash
// incrementally as bytes arrive use this to check a mix id at EOF without
// re-buffering the payload.
func MixChunkIdFromDigest(length uint64, raw hash.Hash, m hash.Method) ChunkId {
	return ChunkId{ObjId{ObjType: MixObjType, Method: m, Digest: mixDigest(length, raw)}}
}

// MixLength extracts the length encoded in a "mix" chunk id's digest. ok is
// false if id is not a mix id.
func MixLength(id ChunkId) (length uint64, ok bool) {
	if id.ObjType != MixObjType {
		return 0, false
	}
	var l uint64
	for i := 0; i < mixLenPrefix; i++ {
		l = l<<8 | uint64(id.Digest[i])
	}
	return l, true
}

func mixDigest(length uint64, raw hash.Hash) hash.Hash {
	var out hash.Hash
	buf := make([]byte, mixLenPrefix)
	l := length
	for i := mixLenPrefix - 1; i >= 0; i-- {
		buf[i] = byte(l & 0xff)
		l >>= 8
	}
	copy(out[:mixLenPrefix], buf)
	copy(out[mixLenPrefix:], raw[mixLenPrefix:])
	return out
}
