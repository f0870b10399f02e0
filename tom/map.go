package tom

import (
	"encoding/json"

	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

// Map is a built, queryable Trie Object Map: immutable, with a fixed
// root_hash independent of the order its entries were staged in.
type Map struct {
	method   hash.Method
	entries  map[string]objid.ObjId
	leaves   []leafRecord
	rootHash hash.Hash
}

// Len returns the number of bound keys.
func (m *Map) Len() int {
	return len(m.entries)
}

// Entry is one (key, ObjId) pair, as yielded by Iter.
type Entry struct {
	Key   string
	ObjId objid.ObjId
}

// Iter returns every bound entry, ordered by trie path (deterministic, not
// insertion order).
func (m *Map) Iter() []Entry {
	out := make([]Entry, len(m.leaves))
	for i, l := range m.leaves {
		out[i] = Entry{Key: l.key, ObjId: l.id}
	}
	return out
}

// GetObject returns the ObjId bound to key, if any.
func (m *Map) GetObject(key string) (objid.ObjId, bool) {
	id, ok := m.entries[key]
	return id, ok
}

// RootHash returns the trie's root_hash.
func (m *Map) RootHash() hash.Hash {
	return m.rootHash
}

// GetObjectProofPath returns a membership or non-membership Proof for key.
func (m *Map) GetObjectProofPath(key string) Proof {
	path := hash.OfWithMethod([]byte(key), m.method)
	_, siblings, at := proveNode(m.leaves, 0, path)
	if at != nil {
		return Proof{Key: key, Present: true, ObjId: at.id, RootHash: m.rootHash, Siblings: siblings}
	}
	return Proof{Key: key, Present: false, RootHash: m.rootHash, Siblings: siblings}
}

// descriptor is the on-disk/on-wire representation of a built Map: the raw
// entries plus the method and root_hash they fold to. Storing the entries
// rather than internal node hashes keeps the representation small and lets
// Open verify the root independently of however it was produced.
type descriptor struct {
	Method   hash.Method `json:"method"`
	Entries  []Entry     `json:"entries"`
	RootHash hash.Hash   `json:"root_hash"`
}

// CalcObjId computes the ObjId this Map would be addressed by if persisted,
// along with the canonical bytes that hash to it.
func (m *Map) CalcObjId() (objid.ObjId, []byte, error) {
	return objid.ComputeObjIdFromValue(TrieObjType, m.asValue(), m.method)
}

func (m *Map) asValue() map[string]any {
	entries := make([]any, len(m.leaves))
	for i, l := range m.leaves {
		entries[i] = map[string]any{"key": l.key, "obj_id": l.id.String()}
	}
	return map[string]any{
		"root_hash": m.rootHash.String(),
		"entries":   entries,
	}
}

// Save serializes m as a descriptor and persists it under id via backend.
func Save(backend StorageBackend, id objid.ObjId, m *Map) error {
	d := descriptor{Method: m.method, Entries: m.Iter(), RootHash: m.rootHash}
	raw, err := json.Marshal(d)
	if err != nil {
		return derr.Wrap(derr.IoError, "tom.Save", id.String(), err)
	}
	return backend.Save(id, raw)
}

// Open loads the descriptor stored under id and rebuilds a Map, verifying
// that the entries still fold to the stored root_hash (spec.md §4.3: a
// tampered stored representation must fail VerifyError at open time rather
// than silently serving a wrong trie).
func Open(backend StorageBackend, id objid.ObjId) (*Map, error) {
	raw, err := backend.Load(id)
	if err != nil {
		return nil, err
	}
	var d descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, derr.Wrap(derr.VerifyError, "tom.Open", id.String(), err)
	}

	entries := make(map[string]objid.ObjId, len(d.Entries))
	for _, e := range d.Entries {
		entries[e.Key] = e.ObjId
	}
	leaves := sortedLeaves(entries, d.Method)
	root := buildNode(leaves, 0)
	if root != d.RootHash {
		return nil, derr.New(derr.VerifyError, "tom.Open", "stored root_hash does not match folded entries for "+id.String())
	}

	return &Map{method: d.Method, entries: entries, leaves: leaves, rootHash: root}, nil
}
