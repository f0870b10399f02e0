package tom

import (
	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/objid"
)

// Builder accumulates (key, ObjId) pairs before Build() fixes them into an
// immutable Map, mirroring the builder→built split the teacher's trie
// examples use between a mutable working set and a committed structure.
type Builder struct {
	method  hash.Method
	entries map[string]objid.ObjId
}

func NewBuilder(method hash.Method) *Builder {
	return &Builder{method: method, entries: map[string]objid.ObjId{}}
}

// PutObject stages key→id. Insertion order never affects the resulting
// root_hash: Build() sorts leaves by path before folding them.
func (b *Builder) PutObject(key string, id objid.ObjId) {
	b.entries[key] = id
}

// Build fixes the staged entries into a Map and computes its root_hash.
func (b *Builder) Build() (*Map, error) {
	leaves := sortedLeaves(b.entries, b.method)
	root := buildNode(leaves, 0)

	entries := make(map[string]objid.ObjId, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}

	return &Map{
		method:   b.method,
		entries:  entries,
		leaves:   leaves,
		rootHash: root,
	}, nil
}
