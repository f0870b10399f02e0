package tom

import (
	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/objid"
)

// Proof is a sibling-path witness for either membership or non-membership
// of Key, as returned by Map.GetObjectProofPath (spec.md §4.3).
type Proof struct {
	Key      string      `json:"key"`
	Present  bool        `json:"present"`
	ObjId    objid.ObjId `json:"obj_id,omitempty"`
	RootHash hash.Hash   `json:"root_hash"`
	Siblings []hash.Hash `json:"siblings"`
}

// Result is the outcome of verifying a Proof (spec.md §4.3/§7).
type Result int

const (
	Ok Result = iota
	RootMismatch
	ValueMismatch
	KeyMismatch
	Malformed
)

func (r Result) String() string {
	switch r {
	case Ok:
		return "Ok"
	case RootMismatch:
		return "RootMismatch"
	case ValueMismatch:
		return "ValueMismatch"
	case KeyMismatch:
		return "KeyMismatch"
	case Malformed:
		return "Malformed"
	default:
		return "Unknown"
	}
}

// Verifier checks Proofs against a pinned expected root, without needing
// access to the trie itself (TrieObjectMapProofVerifierHelper in spec.md
// §4.3). Both VerifyObject and Verify route through evaluate so membership
// and non-membership checks can never diverge on the root/structural checks.
type Verifier struct {
	expectedRoot hash.Hash
	method       hash.Method
}

func NewVerifier(expectedRoot hash.Hash, method hash.Method) *Verifier {
	return &Verifier{expectedRoot: expectedRoot, method: method}
}

// VerifyObject checks a membership proof: that key maps to id under the
// verifier's pinned root.
func (v *Verifier) VerifyObject(key string, id objid.ObjId, proof Proof) Result {
	return v.evaluate(key, &id, proof)
}

// Verify checks a non-membership proof: that key has no entry under the
// verifier's pinned root.
func (v *Verifier) Verify(key string, proof Proof) Result {
	return v.evaluate(key, nil, proof)
}

func (v *Verifier) evaluate(key string, id *objid.ObjId, proof Proof) Result {
	if len(proof.Siblings) != Depth {
		return Malformed
	}
	if proof.Present && proof.ObjId.IsZero() {
		return Malformed
	}

	path := hash.OfWithMethod([]byte(proof.Key), v.method)

	var leaf hash.Hash
	if proof.Present {
		leaf = leafHashFor(path, proof.ObjId)
	} else {
		leaf = emptyLeafHash
	}

	recomputed := climb(leaf, path, proof.Siblings)
	if recomputed != proof.RootHash || proof.RootHash != v.expectedRoot {
		return RootMismatch
	}

	if id != nil {
		// Membership check: the caller supplied an id to check the key
		// against. A proof that witnesses absence, or witnesses a different
		// key or a different id, cannot attest the pair the caller asked
		// about.
		if !proof.Present || proof.Key != key || proof.ObjId != *id {
			return ValueMismatch
		}
		return Ok
	}

	// Non-membership check: a present-proof here is the wrong shape
	// entirely; a proof witnessing absence of a different key is a valid
	// proof misapplied to the wrong key.
	if proof.Present {
		return Malformed
	}
	if proof.Key != key {
		return KeyMismatch
	}
	return Ok
}
