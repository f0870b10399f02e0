package objstore

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cyfs-go/ndncore/internal/derr"
)

var pathsBucket = []byte("paths")

// BoltPathTable is a PathTable persisted in a single bbolt file
// (spec.md §6 names this file "paths.sqlite"; bbolt is the embedded,
// transactional KV store the teacher's own go.mod carries for exactly this
// shape of problem, so ndncore uses it under that filename rather than
// pulling in a SQL driver for a single key→value table).
type BoltPathTable struct {
	db *bolt.DB
}

// OpenBoltPathTable opens (creating if necessary) a bbolt-backed path
// table at path.
func OpenBoltPathTable(path string) (*BoltPathTable, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, derr.Wrap(derr.IoError, "OpenBoltPathTable", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pathsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, derr.Wrap(derr.IoError, "OpenBoltPathTable", path, err)
	}
	return &BoltPathTable{db: db}, nil
}

func (t *BoltPathTable) Close() error {
	return t.db.Close()
}

func (t *BoltPathTable) Bind(entry PathEntry, allowCrossPrincipal bool) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(pathsBucket)
		if raw := b.Get([]byte(entry.ObjPath)); raw != nil && !allowCrossPrincipal {
			var existing PathEntry
			if err := json.Unmarshal(raw, &existing); err != nil {
				return derr.Wrap(derr.IoError, "BoltPathTable.Bind", entry.ObjPath, err)
			}
			if existing.AppId != entry.AppId || existing.UserId != entry.UserId {
				return derr.New(derr.NoPermission, "BoltPathTable.Bind", "cross-principal overwrite of "+entry.ObjPath)
			}
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return derr.Wrap(derr.IoError, "BoltPathTable.Bind", entry.ObjPath, err)
		}
		return b.Put([]byte(entry.ObjPath), raw)
	})
}

func (t *BoltPathTable) Resolve(objPath string) (PathEntry, error) {
	var entry PathEntry
	var found bool
	err := t.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(pathsBucket).Get([]byte(objPath))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return PathEntry{}, derr.Wrap(derr.IoError, "BoltPathTable.Resolve", objPath, err)
	}
	if !found {
		return PathEntry{}, derr.New(derr.NotFound, "BoltPathTable.Resolve", "unbound path "+objPath)
	}
	return entry, nil
}

var _ PathTable = (*BoltPathTable)(nil)
