package tom

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/objid"
)

func objIdFor(s string) objid.ObjId {
	return objid.ObjId{ObjType: "chunk", Method: hash.Sha256, Digest: hash.Of([]byte(s))}
}

func buildFiveKeys(t *testing.T) *Map {
	t.Helper()
	b := NewBuilder(hash.Sha256)
	b.PutObject("chunk1", objIdFor("v1"))
	b.PutObject("chunk2", objIdFor("v2"))
	b.PutObject("chunk3", objIdFor("v3"))
	b.PutObject("chunk4", objIdFor("v4"))
	b.PutObject("chunk5", objIdFor("v5"))
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestRootHashIndependentOfInsertionOrder(t *testing.T) {
	keys := []string{"chunk1", "chunk2", "chunk3", "chunk4", "chunk5"}
	var roots []hash.Hash
	for i := 0; i < 5; i++ {
		perm := append([]string(nil), keys...)
		rand.New(rand.NewSource(int64(i))).Shuffle(len(perm), func(a, b int) { perm[a], perm[b] = perm[b], perm[a] })

		b := NewBuilder(hash.Sha256)
		for _, k := range perm {
			b.PutObject(k, objIdFor(k))
		}
		m, err := b.Build()
		require.NoError(t, err)
		roots = append(roots, m.RootHash())
	}
	for i := 1; i < len(roots); i++ {
		assert.Equal(t, roots[0], roots[i])
	}
}

func TestMembershipProofVerifiesOk(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	id, ok := m.GetObject("chunk3")
	require.True(t, ok)

	proof := m.GetObjectProofPath("chunk3")
	assert.Equal(t, Ok, v.VerifyObject("chunk3", id, proof))
}

func TestNonMembershipProofVerifiesOk(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	proof := m.GetObjectProofPath("notexist")
	assert.False(t, proof.Present)
	assert.Equal(t, Ok, v.Verify("notexist", proof))
}

func TestTamperedRootCausesRootMismatch(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	proof := m.GetObjectProofPath("notexist")
	proof.RootHash[0] ^= 0xff
	assert.Equal(t, RootMismatch, v.Verify("notexist", proof))
}

func TestTamperedSiblingCausesRootMismatch(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	id, _ := m.GetObject("chunk1")
	proof := m.GetObjectProofPath("chunk1")
	proof.Siblings[0][0] ^= 0xff
	assert.Equal(t, RootMismatch, v.VerifyObject("chunk1", id, proof))
}

func TestWrongKeyCausesValueMismatch(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	id, _ := m.GetObject("chunk1")
	proof := m.GetObjectProofPath("chunk1")
	assert.Equal(t, ValueMismatch, v.VerifyObject("fake-key", id, proof))
}

func TestWrongIdCausesValueMismatch(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	proof := m.GetObjectProofPath("chunk1")
	assert.Equal(t, ValueMismatch, v.VerifyObject("chunk1", objIdFor("wrong"), proof))
}

func TestMisappliedNonMembershipProofCausesKeyMismatch(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	proof := m.GetObjectProofPath("notexist")
	assert.Equal(t, KeyMismatch, v.Verify("alsofake", proof))
}

func TestMalformedProofRejected(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	proof := m.GetObjectProofPath("chunk1")
	proof.Siblings = proof.Siblings[:len(proof.Siblings)-1]
	id, _ := m.GetObject("chunk1")
	assert.Equal(t, Malformed, v.VerifyObject("chunk1", id, proof))
}

func TestLenAndIter(t *testing.T) {
	m := buildFiveKeys(t)
	assert.Equal(t, 5, m.Len())
	assert.Len(t, m.Iter(), 5)
}

// TestScenario2EndToEnd follows the spec's worked scenario: build a 5-key
// trie, check non-membership for an absent key, tamper the proof's root,
// then ask about an unrelated key with an otherwise-valid proof.
func TestScenario2EndToEnd(t *testing.T) {
	m := buildFiveKeys(t)
	v := NewVerifier(m.RootHash(), hash.Sha256)

	nonMember := m.GetObjectProofPath("notexist")
	require.Equal(t, Ok, v.Verify("notexist", nonMember))

	tampered := nonMember
	tampered.RootHash[0] ^= 0x01
	assert.Equal(t, RootMismatch, v.Verify("notexist", tampered))

	id, _ := m.GetObject("chunk2")
	memberProof := m.GetObjectProofPath("chunk2")
	assert.Equal(t, ValueMismatch, v.VerifyObject("fake-key", id, memberProof))
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	m := buildFiveKeys(t)
	backend := NewMemStorageBackend()

	id, _, err := m.CalcObjId()
	require.NoError(t, err)
	require.NoError(t, Save(backend, id, m))

	reopened, err := Open(backend, id)
	require.NoError(t, err)
	assert.Equal(t, m.RootHash(), reopened.RootHash())
	assert.Equal(t, m.Len(), reopened.Len())

	gotId, ok := reopened.GetObject("chunk3")
	require.True(t, ok)
	wantId, _ := m.GetObject("chunk3")
	assert.Equal(t, wantId, gotId)
}

func TestOpenRejectsTamperedDescriptor(t *testing.T) {
	m := buildFiveKeys(t)
	backend := NewMemStorageBackend()
	id, _, err := m.CalcObjId()
	require.NoError(t, err)
	require.NoError(t, Save(backend, id, m))

	raw, err := backend.Load(id)
	require.NoError(t, err)
	tampered := append([]byte(nil), raw...)
	// Flip a byte inside the JSON body without breaking JSON syntax: corrupt
	// a base32 character in the root_hash string value.
	marker := []byte(`"root_hash":"`)
	if i := bytes.Index(tampered, marker); i >= 0 {
		pos := i + len(marker)
		if tampered[pos] == 'a' {
			tampered[pos] = 'b'
		} else {
			tampered[pos] = 'a'
		}
	}
	require.NoError(t, backend.Save(id, tampered))

	_, err = Open(backend, id)
	require.Error(t, err)
}
