package objstore

import (
	"sync"

	"github.com/cyfs-go/ndncore/internal/derr"
)

// PathTable is the named-path → ObjId binding table (spec.md §3 "Named
// path", §4.2, §5: "a table-level writer lock and a per-path read path").
type PathTable interface {
	// Bind creates or replaces the binding at objPath. If a binding already
	// exists and was not created by (appId, userId), Bind returns
	// NoPermission unless allowCrossPrincipal is true.
	Bind(entry PathEntry, allowCrossPrincipal bool) error
	Resolve(objPath string) (PathEntry, error)
}

// MemPathTable is an in-memory PathTable, grounded on the single
// table-level lock the concurrency model in spec.md §5 calls for.
type MemPathTable struct {
	mu      sync.RWMutex
	entries map[string]PathEntry
}

func NewMemPathTable() *MemPathTable {
	return &MemPathTable{entries: map[string]PathEntry{}}
}

func (t *MemPathTable) Bind(entry PathEntry, allowCrossPrincipal bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.entries[entry.ObjPath]
	if ok && !allowCrossPrincipal && (existing.AppId != entry.AppId || existing.UserId != entry.UserId) {
		return derr.New(derr.NoPermission, "PathTable.Bind", "cross-principal overwrite of "+entry.ObjPath)
	}
	t.entries[entry.ObjPath] = entry
	return nil
}

func (t *MemPathTable) Resolve(objPath string) (PathEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[objPath]
	if !ok {
		return PathEntry{}, derr.New(derr.NotFound, "PathTable.Resolve", "unbound path "+objPath)
	}
	return e, nil
}

