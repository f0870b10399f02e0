package objstore

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

// ObjectBackend is the pluggable persistence layer for canonical object
// bytes, keyed by ObjId.
type ObjectBackend interface {
	Put(id objid.ObjId, canonical []byte) error
	Get(id objid.ObjId) ([]byte, bool, error)
}

// MemObjectBackend is an in-memory ObjectBackend.
type MemObjectBackend struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

func NewMemObjectBackend() *MemObjectBackend {
	return &MemObjectBackend{objs: map[string][]byte{}}
}

func (b *MemObjectBackend) Put(id objid.ObjId, canonical []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objs[id.String()] = append([]byte(nil), canonical...)
	return nil
}

func (b *MemObjectBackend) Get(id objid.ObjId) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.objs[id.String()]
	return v, ok, nil
}

// FSObjectBackend persists canonical object bytes under
// <root>/objects/<type>/<hexprefix>/<digest>.json (spec.md §6).
type FSObjectBackend struct {
	root string
}

func NewFSObjectBackend(root string) *FSObjectBackend {
	return &FSObjectBackend{root: root}
}

func (b *FSObjectBackend) path(id objid.ObjId) string {
	prefix := hex.EncodeToString(id.Digest[:1])
	return filepath.Join(b.root, "objects", id.ObjType, prefix, id.Digest.String()+".json")
}

func (b *FSObjectBackend) Put(id objid.ObjId, canonical []byte) error {
	p := b.path(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, canonical, 0o644)
}

func (b *FSObjectBackend) Get(id objid.ObjId) ([]byte, bool, error) {
	raw, err := os.ReadFile(b.path(id))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// PutObject implements put_object: it requires the canonical bytes to hash
// to objId, rejecting mismatches with InvalidId. Put is idempotent.
func PutObject(backend ObjectBackend, id objid.ObjId, canonicalJSON []byte) error {
	want := objid.ComputeObjId(id.ObjType, canonicalJSON, id.Method)
	if want.Digest != id.Digest {
		return derr.New(derr.InvalidId, "PutObject", "canonical bytes do not hash to "+id.String())
	}
	if err := backend.Put(id, canonicalJSON); err != nil {
		return derr.Wrap(derr.IoError, "PutObject", id.String(), err)
	}
	return nil
}

// GetObject implements get_object: it returns the whole object, or the
// value at innerPath if innerPath is non-empty. Inner-path syntax is
// JSON-pointer-like, slash-separated keys.
func GetObject(backend ObjectBackend, id objid.ObjId, innerPath string) (any, error) {
	raw, ok, err := backend.Get(id)
	if err != nil {
		return nil, derr.Wrap(derr.IoError, "GetObject", id.String(), err)
	}
	if !ok {
		return nil, derr.New(derr.NotFound, "GetObject", "object not found: "+id.String())
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, derr.Wrap(derr.IoError, "GetObject", id.String(), err)
	}
	if innerPath == "" {
		return v, nil
	}
	return WalkInnerPath(v, innerPath)
}

// WalkInnerPath resolves a slash-separated, JSON-pointer-like path inside
// an already-decoded JSON value. A missing field is a NotFound error
// (spec.md §4.4.3 step 3).
func WalkInnerPath(v any, innerPath string) (any, error) {
	cur := v
	for _, seg := range strings.Split(strings.Trim(innerPath, "/"), "/") {
		if seg == "" {
			continue
		}
		switch t := cur.(type) {
		case map[string]any:
			next, ok := t[seg]
			if !ok {
				return nil, derr.New(derr.NotFound, "WalkInnerPath", "no field "+seg)
			}
			cur = next
		case []any:
			idx, err := parseArrayIndex(seg)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, derr.New(derr.NotFound, "WalkInnerPath", "no index "+seg)
			}
			cur = t[idx]
		default:
			return nil, derr.New(derr.NotFound, "WalkInnerPath", "cannot descend into scalar at "+seg)
		}
	}
	return cur, nil
}

func parseArrayIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, derr.New(derr.InvalidId, "parseArrayIndex", "empty index")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, derr.New(derr.InvalidId, "parseArrayIndex", "not numeric: "+s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

