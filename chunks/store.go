package chunks

import (
	"context"
	"sync"

	"github.com/cyfs-go/ndncore/hash"
)

// ChunkStore is the simple get/put surface over a chunk backend, grounded
// on the teacher's go/store/chunks.ChunkStore. The resumable writer/reader
// state machine in manager.go is layered on top of a Backend, not this
// interface; ChunkStore is what in-process callers (tom, objstore) use when
// they already have a complete chunk's bytes in hand.
type ChunkStore interface {
	Get(ctx context.Context, h hash.Hash) Chunk
	GetMany(ctx context.Context, hashes hash.HashSet, foundChunks chan<- *Chunk)
	Has(ctx context.Context, h hash.Hash) bool
	HasMany(ctx context.Context, hashes hash.HashSet) hash.HashSet
	Put(ctx context.Context, c Chunk)
}

// MemoryStorage is an in-memory ChunkStore backend, grounded on the
// teacher's go/store/chunks/test_utils.go MemoryStorage/TestStorage split.
type MemoryStorage struct {
	mu     sync.RWMutex
	chunks map[hash.Hash]Chunk
}

// NewView returns a ChunkStore view over this storage's shared map.
func (ms *MemoryStorage) NewView() ChunkStore {
	if ms.chunks == nil {
		ms.chunks = map[hash.Hash]Chunk{}
	}
	return &memoryStoreView{ms}
}

type memoryStoreView struct {
	ms *MemoryStorage
}

func (v *memoryStoreView) Get(_ context.Context, h hash.Hash) Chunk {
	v.ms.mu.RLock()
	defer v.ms.mu.RUnlock()
	if c, ok := v.ms.chunks[h]; ok {
		return c
	}
	return EmptyChunk
}

func (v *memoryStoreView) GetMany(ctx context.Context, hashes hash.HashSet, foundChunks chan<- *Chunk) {
	for h := range hashes {
		c := v.Get(ctx, h)
		if !c.IsEmpty() {
			cc := c
			foundChunks <- &cc
		}
	}
}

func (v *memoryStoreView) Has(_ context.Context, h hash.Hash) bool {
	v.ms.mu.RLock()
	defer v.ms.mu.RUnlock()
	_, ok := v.ms.chunks[h]
	return ok
}

func (v *memoryStoreView) HasMany(ctx context.Context, hashes hash.HashSet) hash.HashSet {
	out := hash.HashSet{}
	for h := range hashes {
		if v.Has(ctx, h) {
			out.Insert(h)
		}
	}
	return out
}

func (v *memoryStoreView) Put(_ context.Context, c Chunk) {
	v.ms.mu.Lock()
	defer v.ms.mu.Unlock()
	if v.ms.chunks == nil {
		v.ms.chunks = map[hash.Hash]Chunk{}
	}
	v.ms.chunks[c.Hash()] = c
}

// TestStoreFactory vends a named ChunkStore per namespace, backed by
// MemoryStorage, grounded on the teacher's TestStoreFactory.
type TestStoreFactory struct {
	mu     sync.Mutex
	stores map[string]*MemoryStorage
}

// NewTestStoreFactory returns a ready-to-use factory.
func NewTestStoreFactory() *TestStoreFactory {
	return &TestStoreFactory{stores: map[string]*MemoryStorage{}}
}

// CreateStore returns the ChunkStore for ns, creating it on first use.
func (f *TestStoreFactory) CreateStore(ns string) ChunkStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stores == nil {
		panic("chunks: CreateStore after Shutter()")
	}
	if ts, ok := f.stores[ns]; ok {
		return ts.NewView()
	}
	ts := &MemoryStorage{}
	f.stores[ns] = ts
	return ts.NewView()
}

// Shutter releases all stores; subsequent CreateStore calls panic.
func (f *TestStoreFactory) Shutter() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stores = nil
}

// OutstandingRequest is one waiter's interest in a hash being resolved,
// grounded on the teacher's go/store/chunks remote_requests_test.go.
type OutstandingRequest struct {
	hasChan chan bool
	getChan chan *Chunk
}

// OutstandingAbsent builds a request interested only in presence.
func OutstandingAbsent(ch chan bool) OutstandingRequest { return OutstandingRequest{hasChan: ch} }

// OutstandingGet builds a request interested in the chunk itself.
func OutstandingGet(ch chan *Chunk) OutstandingRequest { return OutstandingRequest{getChan: ch} }

// Satisfy resolves the request: a presence waiter observes true, a get
// waiter receives c.
func (r OutstandingRequest) Satisfy(h hash.Hash, c *Chunk) {
	if r.hasChan != nil {
		r.hasChan <- true
	}
	if r.getChan != nil {
		r.getChan <- c
	}
}

// Fail resolves the request negatively: a presence waiter observes false, a
// get waiter receives the empty chunk.
func (r OutstandingRequest) Fail() {
	if r.hasChan != nil {
		r.hasChan <- false
	}
	if r.getChan != nil {
		empty := EmptyChunk
		r.getChan <- &empty
	}
}

// ReadBatch groups OutstandingRequests by the hash they're waiting on.
type ReadBatch map[hash.Hash][]OutstandingRequest

// Close fails every still-outstanding request in the batch.
func (rb ReadBatch) Close() {
	for h, reqs := range rb {
		for _, r := range reqs {
			r.Fail()
		}
		delete(rb, h)
	}
}
