// Package hash implements the content-hash primitives that every identifier
// in ndncore is built from: a method-tagged, fixed-width digest with a
// URL-safe base32 string form.
package hash

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"strings"

	"github.com/zeebo/blake3"
)

// ByteLen is the digest width in bytes, shared by every supported Method.
const ByteLen = 32

// StringLen is the length of the base32-encoded digest, with the trailing
// pad characters stripped.
const StringLen = 52

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Method names a hash function. The wire/string form of a digest carries no
// separate method tag for the default method (Sha256) so that existing
// 32-byte digests remain parseable; non-default methods must be carried out
// of band by the caller (objid encodes the method explicitly).
type Method uint8

const (
	Sha256 Method = iota
	Blake3
)

func (m Method) String() string {
	switch m {
	case Sha256:
		return "sha256"
	case Blake3:
		return "blake3"
	default:
		return "unknown"
	}
}

// MarshalJSON renders m by name.
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Method) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, ok := ParseMethod(s)
	if !ok {
		return &invalidHashJSONError{s}
	}
	*m = parsed
	return nil
}

// ParseMethod returns the Method named by s, or false if s names none.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "sha256", "":
		return Sha256, true
	case "blake3":
		return Blake3, true
	default:
		return Sha256, false
	}
}

// Hash is a fixed-width content digest.
type Hash [ByteLen]byte

var emptyHash Hash

// Of computes the digest of b using the default method (Sha256).
func Of(b []byte) Hash {
	return OfWithMethod(b, Sha256)
}

// OfWithMethod computes the digest of b using the named method.
func OfWithMethod(b []byte, m Method) Hash {
	switch m {
	case Blake3:
		return Hash(blake3.Sum256(b))
	default:
		return Hash(sha256.Sum256(b))
	}
}

// New constructs a Hash from a pre-computed digest slice. It panics if
// digest is not exactly ByteLen bytes.
func New(digest []byte) Hash {
	if len(digest) != ByteLen {
		panic("hash: wrong digest length")
	}
	var h Hash
	copy(h[:], digest)
	return h
}

// IsEmpty reports whether h is the zero hash.
func (h Hash) IsEmpty() bool {
	return h == emptyHash
}

// String returns the base32, unpadded string form of h.
func (h Hash) String() string {
	return strings.ToLower(encoding.EncodeToString(h[:]))
}

// Less reports whether h sorts before other byte-for-byte.
func (h Hash) Less(other Hash) bool {
	return h.Compare(other) < 0
}

// Compare returns -1, 0 or 1 as h is less than, equal to, or greater than other.
func (h Hash) Compare(other Hash) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Parse decodes s into a Hash. It panics on malformed input; callers that
// need a non-panicking parse should use MaybeParse.
func Parse(s string) Hash {
	h, ok := MaybeParse(s)
	if !ok {
		panic("hash: invalid hash string: " + s)
	}
	return h
}

// MaybeParse decodes s into a Hash, returning ok=false for any malformed
// input instead of panicking.
func MaybeParse(s string) (Hash, bool) {
	if len(s) != StringLen {
		return emptyHash, false
	}
	digest, err := encoding.DecodeString(strings.ToUpper(s))
	if err != nil || len(digest) != ByteLen {
		return emptyHash, false
	}
	return New(digest), true
}

// MarshalJSON renders h as its base32 string form.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*h = emptyHash
		return nil
	}
	parsed, ok := MaybeParse(s)
	if !ok {
		return &invalidHashJSONError{s}
	}
	*h = parsed
	return nil
}

type invalidHashJSONError struct{ s string }

func (e *invalidHashJSONError) Error() string {
	return "hash: invalid JSON hash string: " + e.s
}

// HashSet is an unordered set of Hash values.
type HashSet map[Hash]struct{}

// NewHashSet builds a HashSet from the given hashes.
func NewHashSet(hashes ...Hash) HashSet {
	s := make(HashSet, len(hashes))
	for _, h := range hashes {
		s[h] = struct{}{}
	}
	return s
}

// Insert adds h to the set.
func (s HashSet) Insert(h Hash) {
	s[h] = struct{}{}
}

// Has reports whether h is a member of the set.
func (s HashSet) Has(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Slice returns the set's members in indeterminate order.
func (s HashSet) Slice() []Hash {
	out := make([]Hash, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	return out
}
