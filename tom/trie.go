// Package tom implements the Trie Object Map (C3): a persistent,
// authenticated key→ObjId mapping built as a fixed-depth sparse Merkle
// trie over H(key), producing sibling-path membership and non-membership
// proofs (spec.md §4.3). The overall builder→built→opened lifecycle and
// buffered-mutation shape is grounded on
// _examples/other_examples/d73aca3d_iotaledger-trie.go__trie-trie.go.go and
// .../2dab4c8b_..._immutable-trie.go.go (NodeStore/Trie split, Commit()
// recomputing commitments bottom-up), generalized from their 256-ary
// verkle-commitment model down to a binary sibling-hash proof.
package tom

import (
	"sort"

	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/objid"
)

// TrieObjType is the obj_type tag for a persisted trie descriptor.
const TrieObjType = "trie"

// Depth is the number of bits in a leaf's path, one per digest bit of the
// configured hash method (hash.ByteLen*8), so two distinct keys diverge at
// a unique, deterministic position with overwhelming probability.
const Depth = hash.ByteLen * 8

type leafRecord struct {
	key      string
	path     hash.Hash
	id       objid.ObjId
	leafHash hash.Hash
}

func bitAt(h hash.Hash, depth int) byte {
	byteIdx := depth / 8
	bitIdx := 7 - depth%8
	return (h[byteIdx] >> uint(bitIdx)) & 1
}

func partition(leaves []leafRecord, depth int) (left, right []leafRecord) {
	for _, l := range leaves {
		if bitAt(l.path, depth) == 0 {
			left = append(left, l)
		} else {
			right = append(right, l)
		}
	}
	return left, right
}

func leafHashFor(path hash.Hash, id objid.ObjId) hash.Hash {
	buf := append([]byte("L"), path[:]...)
	buf = append(buf, []byte(id.String())...)
	return hash.Of(buf)
}

var emptyLeafHash = hash.Of([]byte("E"))

func nodeHash(left, right hash.Hash) hash.Hash {
	buf := make([]byte, 0, 1+2*hash.ByteLen)
	buf = append(buf, 'N')
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return hash.Of(buf)
}

// emptyHashAt[d] is the canonical root hash of an empty subtree rooted at
// depth d, computed bottom-up once.
var emptyHashAt = func() []hash.Hash {
	table := make([]hash.Hash, Depth+1)
	table[Depth] = emptyLeafHash
	for d := Depth - 1; d >= 0; d-- {
		table[d] = nodeHash(table[d+1], table[d+1])
	}
	return table
}()

// buildNode computes the Merkle root of leaves (already restricted to the
// subtree rooted at depth).
func buildNode(leaves []leafRecord, depth int) hash.Hash {
	if len(leaves) == 0 {
		return emptyHashAt[depth]
	}
	if depth == Depth {
		return leaves[0].leafHash
	}
	left, right := partition(leaves, depth)
	return nodeHash(buildNode(left, depth+1), buildNode(right, depth+1))
}

// proveNode computes the Merkle root of leaves and, along the way, the
// leaf-to-root sibling chain for targetPath, plus whichever leaf (if any)
// occupies targetPath's position. It always descends to Depth regardless of
// whether the target's subtree is empty, so a non-membership proof carries
// exactly as many siblings as a membership one (spec.md §4.3/§8 scenario 2);
// an empty subtree on the non-target side still yields a real sibling hash
// via buildNode/emptyHashAt, it just isn't backed by any leaf.
func proveNode(leaves []leafRecord, depth int, targetPath hash.Hash) (root hash.Hash, siblings []hash.Hash, at *leafRecord) {
	if depth == Depth {
		if len(leaves) == 0 {
			return emptyLeafHash, nil, nil
		}
		return leaves[0].leafHash, nil, &leaves[0]
	}
	left, right := partition(leaves, depth)
	if bitAt(targetPath, depth) == 0 {
		childRoot, childSiblings, at := proveNode(left, depth+1, targetPath)
		rightRoot := buildNode(right, depth+1)
		return nodeHash(childRoot, rightRoot), append(childSiblings, rightRoot), at
	}
	childRoot, childSiblings, at := proveNode(right, depth+1, targetPath)
	leftRoot := buildNode(left, depth+1)
	return nodeHash(leftRoot, childRoot), append(childSiblings, leftRoot), at
}

func climb(leafHash hash.Hash, path hash.Hash, siblings []hash.Hash) hash.Hash {
	cur := leafHash
	for i := Depth - 1; i >= 0; i-- {
		sib := siblings[Depth-1-i]
		if bitAt(path, i) == 0 {
			cur = nodeHash(cur, sib)
		} else {
			cur = nodeHash(sib, cur)
		}
	}
	return cur
}

func sortedLeaves(entries map[string]objid.ObjId, method hash.Method) []leafRecord {
	leaves := make([]leafRecord, 0, len(entries))
	for k, id := range entries {
		path := hash.OfWithMethod([]byte(k), method)
		leaves = append(leaves, leafRecord{key: k, path: path, id: id, leafHash: leafHashFor(path, id)})
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].path.Less(leaves[j].path) })
	return leaves
}
