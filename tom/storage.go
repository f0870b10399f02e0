package tom

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

// StorageBackend persists a built Map's descriptor, keyed by its own ObjId,
// mirroring the pluggable ChunkStore/ObjectBackend split used elsewhere.
type StorageBackend interface {
	Save(id objid.ObjId, data []byte) error
	Load(id objid.ObjId) ([]byte, error)
}

// MemStorageBackend is an in-memory StorageBackend, the default for tests.
type MemStorageBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemStorageBackend() *MemStorageBackend {
	return &MemStorageBackend{blobs: map[string][]byte{}}
}

func (b *MemStorageBackend) Save(id objid.ObjId, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[id.String()] = append([]byte(nil), data...)
	return nil
}

func (b *MemStorageBackend) Load(id objid.ObjId) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[id.String()]
	if !ok {
		return nil, derr.New(derr.NotFound, "MemStorageBackend.Load", id.String())
	}
	return append([]byte(nil), data...), nil
}

// FSStorageBackend persists one JSON file per trie-object, named by the
// trie's own ObjId (spec.md §6: "a trie-object-id.json file sufficient,
// together with hash_method, to reconstruct the trie").
type FSStorageBackend struct {
	root string
}

func NewFSStorageBackend(root string) *FSStorageBackend {
	return &FSStorageBackend{root: root}
}

func (b *FSStorageBackend) path(id objid.ObjId) string {
	prefix := hex.EncodeToString(id.Digest[:1])
	return filepath.Join(b.root, "tries", id.ObjType, prefix, id.Digest.String()+".json")
}

func (b *FSStorageBackend) Save(id objid.ObjId, data []byte) error {
	p := b.path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return derr.Wrap(derr.IoError, "FSStorageBackend.Save", p, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return derr.Wrap(derr.IoError, "FSStorageBackend.Save", p, err)
	}
	return nil
}

func (b *FSStorageBackend) Load(id objid.ObjId) ([]byte, error) {
	data, err := os.ReadFile(b.path(id))
	if os.IsNotExist(err) {
		return nil, derr.New(derr.NotFound, "FSStorageBackend.Load", id.String())
	}
	if err != nil {
		return nil, derr.Wrap(derr.IoError, "FSStorageBackend.Load", b.path(id), err)
	}
	return data, nil
}
