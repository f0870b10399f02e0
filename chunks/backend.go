package chunks

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyfs-go/ndncore/objid"
)

// Backend is the pluggable persistence layer under a Manager: it owns the
// per-chunk metadata (state + progress) and the partial/completed byte
// storage. Manager owns the in-memory locking and state-machine logic;
// Backend owns durability, per spec.md §6's on-disk layout.
type Backend interface {
	ReadMeta(id objid.ChunkId) (Progress, error)
	WriteMeta(id objid.ChunkId, p Progress) error
	DeleteMeta(id objid.ChunkId) error

	AppendPartial(id objid.ChunkId, p []byte) (uint64, error)
	OpenPartial(id objid.ChunkId) (io.ReadCloser, error)
	DeletePartial(id objid.ChunkId) error

	PromotePartialToCompleted(id objid.ChunkId) error
	OpenCompleted(id objid.ChunkId) (io.ReadCloser, int64, error)
	HasCompleted(id objid.ChunkId) bool
}

// ---- MemBackend: in-memory Backend, the default for tests. ----

type memChunkRecord struct {
	meta      Progress
	partial   []byte
	completed []byte
	hasCompl  bool
}

// MemBackend is an in-memory Backend.
type MemBackend struct {
	mu      sync.Mutex
	records map[string]*memChunkRecord
}

// NewMemBackend returns a ready-to-use MemBackend.
func NewMemBackend() *MemBackend {
	return &MemBackend{records: map[string]*memChunkRecord{}}
}

func (b *MemBackend) rec(id objid.ChunkId) *memChunkRecord {
	key := id.String()
	r, ok := b.records[key]
	if !ok {
		r = &memChunkRecord{meta: Progress{State: NotExist}}
		b.records[key] = r
	}
	return r
}

func (b *MemBackend) ReadMeta(id objid.ChunkId) (Progress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec(id).meta, nil
}

func (b *MemBackend) WriteMeta(id objid.ChunkId, p Progress) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec(id).meta = p
	return nil
}

func (b *MemBackend) DeleteMeta(id objid.ChunkId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.records, id.String())
	return nil
}

func (b *MemBackend) AppendPartial(id objid.ChunkId, p []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.rec(id)
	r.partial = append(r.partial, p...)
	return uint64(len(r.partial)), nil
}

func (b *MemBackend) OpenPartial(id objid.ChunkId) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.rec(id)
	return io.NopCloser(bytes.NewReader(r.partial)), nil
}

func (b *MemBackend) DeletePartial(id objid.ChunkId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec(id).partial = nil
	return nil
}

func (b *MemBackend) PromotePartialToCompleted(id objid.ChunkId) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.rec(id)
	r.completed = r.partial
	r.partial = nil
	r.hasCompl = true
	return nil
}

func (b *MemBackend) OpenCompleted(id objid.ChunkId) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.rec(id)
	if !r.hasCompl {
		return nil, 0, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(r.completed)), int64(len(r.completed)), nil
}

func (b *MemBackend) HasCompleted(id objid.ChunkId) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rec(id).hasCompl
}

// ---- FSBackend: on-disk Backend per spec.md §6. ----

// FSBackend persists chunks under:
//
//	<root>/chunks/<method>/<hexprefix>/<digest>       completed
//	<root>/chunks/<method>/partial/<digest>.part       in-progress bytes
//	<root>/chunks/<method>/partial/<digest>.meta       in-progress state (JSON)
type FSBackend struct {
	root string
}

// NewFSBackend returns a Backend rooted at root. The caller is responsible
// for root already existing.
func NewFSBackend(root string) *FSBackend {
	return &FSBackend{root: root}
}

func (b *FSBackend) completedPath(id objid.ChunkId) string {
	digest := id.Digest.String()
	prefix := hex.EncodeToString(id.Digest[:1])
	return filepath.Join(b.root, "chunks", id.Method.String(), prefix, digest)
}

func (b *FSBackend) partialPath(id objid.ChunkId) string {
	return filepath.Join(b.root, "chunks", id.Method.String(), "partial", id.Digest.String()+".part")
}

func (b *FSBackend) metaPath(id objid.ChunkId) string {
	return filepath.Join(b.root, "chunks", id.Method.String(), "partial", id.Digest.String()+".meta")
}

func (b *FSBackend) ReadMeta(id objid.ChunkId) (Progress, error) {
	raw, err := os.ReadFile(b.metaPath(id))
	if os.IsNotExist(err) {
		if b.HasCompleted(id) {
			fi, statErr := os.Stat(b.completedPath(id))
			if statErr != nil {
				return Progress{}, statErr
			}
			return Progress{State: Completed, WrittenLen: uint64(fi.Size()), ExpectedLen: uint64(fi.Size())}, nil
		}
		return Progress{State: NotExist}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	var p Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

func (b *FSBackend) WriteMeta(id objid.ChunkId, p Progress) error {
	if err := os.MkdirAll(filepath.Dir(b.metaPath(id)), 0o755); err != nil {
		return err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(b.metaPath(id), raw, 0o644)
}

func (b *FSBackend) DeleteMeta(id objid.ChunkId) error {
	err := os.Remove(b.metaPath(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *FSBackend) AppendPartial(id objid.ChunkId, p []byte) (uint64, error) {
	if err := os.MkdirAll(filepath.Dir(b.partialPath(id)), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(b.partialPath(id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if _, err := f.Write(p); err != nil {
		return 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

func (b *FSBackend) OpenPartial(id objid.ChunkId) (io.ReadCloser, error) {
	return os.Open(b.partialPath(id))
}

// DeletePartial removes only the in-progress byte file, not the meta
// record: Writer.Complete calls this on a hash mismatch right after
// persisting Progress{State: Corrupt}, and a later QueryChunkState must
// still observe Corrupt rather than NotExist (matching MemBackend, which
// never touches its record's meta here either).
func (b *FSBackend) DeletePartial(id objid.ChunkId) error {
	err := os.Remove(b.partialPath(id))
	if os.IsNotExist(err) {
		err = nil
	}
	return err
}

func (b *FSBackend) PromotePartialToCompleted(id objid.ChunkId) error {
	if err := os.MkdirAll(filepath.Dir(b.completedPath(id)), 0o755); err != nil {
		return err
	}
	if err := os.Rename(b.partialPath(id), b.completedPath(id)); err != nil {
		return err
	}
	return b.DeleteMeta(id)
}

func (b *FSBackend) OpenCompleted(id objid.ChunkId) (io.ReadCloser, int64, error) {
	f, err := os.Open(b.completedPath(id))
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

func (b *FSBackend) HasCompleted(id objid.ChunkId) bool {
	_, err := os.Stat(b.completedPath(id))
	return err == nil
}
