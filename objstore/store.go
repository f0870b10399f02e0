package objstore

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/cyfs-go/ndncore/chunks"
	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

// Store is the full Named-Data Manager surface: chunk manager + object
// backend + path table, wired together the way spec.md §4.2's
// pub_local_file_as_fileobj needs all three.
type Store struct {
	Chunks  *chunks.Manager
	Objects ObjectBackend
	Paths   PathTable
	Method  hash.Method

	now func() time.Time
}

// NewStore builds a Store over already-constructed components.
func NewStore(chunkMgr *chunks.Manager, objects ObjectBackend, paths PathTable, method hash.Method) *Store {
	return &Store{Chunks: chunkMgr, Objects: objects, Paths: paths, Method: method, now: time.Now}
}

// CreateFile binds objPath to objId as (appId, userId), following
// create_file/pub_object_to_file. Overwriting a path owned by the same
// principal is allowed; cross-principal overwrite is denied.
func (s *Store) CreateFile(objPath string, id objid.ObjId, appId, userId string) error {
	return s.Paths.Bind(PathEntry{
		ObjPath:   objPath,
		ObjId:     id,
		AppId:     appId,
		UserId:    userId,
		CreatedTs: s.now().Unix(),
	}, false)
}

// ResolvePath implements resolve_path.
func (s *Store) ResolvePath(objPath string) (id objid.ObjId, owner string, err error) {
	e, err := s.Paths.Resolve(objPath)
	if err != nil {
		return objid.ObjId{}, "", err
	}
	return e.ObjId, e.UserId, nil
}

// PutObject implements put_object.
func (s *Store) PutObject(id objid.ObjId, canonicalJSON []byte) error {
	return PutObject(s.Objects, id, canonicalJSON)
}

// GetObject implements get_object.
func (s *Store) GetObject(id objid.ObjId, innerPath string) (any, error) {
	return GetObject(s.Objects, id, innerPath)
}

// ChunkListSplitSize is the file-size threshold above which
// PubLocalFileAsFileObj stores content as a ChunkListObject (SPEC_FULL §4)
// instead of a single chunk. Chosen to keep any one chunk's in-memory hash
// buffer (see incrementalHash) to a modest size rather than to mirror any
// fixed constant from the original implementation. A var, not a const, so
// tests can shrink it instead of writing multi-megabyte fixtures.
var ChunkListSplitSize int64 = 8 << 20 // 8 MiB

// PubLocalFileAsFileObj implements pub_local_file_as_fileobj: it writes
// localFilePath into the chunk store, fills a FileObject pointing at the
// resulting chunk — or, for
// files larger than ChunkListSplitSize, a ChunkListObject spanning several
// chunks — computes and puts the FileObject, then binds objPath to the
// object and contentNdnPath to the content id. Each chunk is read twice: a
// first pass buffers all of the chunk's bytes in memory and hashes them at
// EOF (see incrementalHash) to get its ChunkId, and a second pass streams
// them into the chunk writer. The ChunkId is not computed while writing.
func (s *Store) PubLocalFileAsFileObj(ctx context.Context, localFilePath, objPath, contentNdnPath, userId, appId string) (objid.ObjId, error) {
	f, err := os.Open(localFilePath)
	if err != nil {
		return objid.ObjId{}, derr.Wrap(derr.IoError, "PubLocalFileAsFileObj", localFilePath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return objid.ObjId{}, derr.Wrap(derr.IoError, "PubLocalFileAsFileObj", localFilePath, err)
	}

	var contentId objid.ObjId
	if fi.Size() > ChunkListSplitSize {
		contentId, err = s.writeChunkList(ctx, f, localFilePath)
	} else {
		contentId, err = s.writeSingleChunk(ctx, f, localFilePath)
	}
	if err != nil {
		return objid.ObjId{}, err
	}

	fileObj := FileObject{Name: fi.Name(), Size: uint64(fi.Size()), Content: contentId}
	objIdResult, canonical, err := objid.ComputeObjIdFromValue(FileObjType, fileObj.AsValue(), s.Method)
	if err != nil {
		return objid.ObjId{}, derr.Wrap(derr.IoError, "PubLocalFileAsFileObj", localFilePath, err)
	}
	if err := s.PutObject(objIdResult, canonical); err != nil {
		return objid.ObjId{}, err
	}

	if err := s.CreateFile(objPath, objIdResult, appId, userId); err != nil {
		return objid.ObjId{}, err
	}
	if contentNdnPath != "" {
		if err := s.CreateFile(contentNdnPath, contentId, appId, userId); err != nil {
			return objid.ObjId{}, err
		}
	}
	return objIdResult, nil
}

// writeSingleChunk streams all of f into one chunk, mirroring the teacher's
// streaming-write idiom; the chunk writer itself re-verifies at Complete().
func (s *Store) writeSingleChunk(ctx context.Context, f *os.File, path string) (objid.ObjId, error) {
	sum, size, err := incrementalHash(f, s.Method)
	if err != nil {
		return objid.ObjId{}, derr.Wrap(derr.IoError, "writeSingleChunk", path, err)
	}
	chunkId := objid.ChunkId{ObjId: objid.ObjId{ObjType: objid.ChunkObjType, Method: s.Method, Digest: sum}}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return objid.ObjId{}, derr.Wrap(derr.IoError, "writeSingleChunk", path, err)
	}

	w, _, err := s.Chunks.OpenChunkWriter(ctx, chunkId, uint64(size), 0)
	if err != nil && derr.KindOf(err) != derr.AlreadyExists {
		return objid.ObjId{}, err
	}
	if w != nil {
		buf := make([]byte, 256*1024)
		for {
			n, rerr := f.Read(buf)
			if n > 0 {
				if _, werr := w.Write(ctx, buf[:n]); werr != nil {
					return objid.ObjId{}, werr
				}
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				return objid.ObjId{}, derr.Wrap(derr.IoError, "writeSingleChunk", path, rerr)
			}
		}
		if err := w.Complete(ctx); err != nil {
			return objid.ObjId{}, err
		}
	}
	return chunkId.ObjId, nil
}

// writeChunkList splits f into ChunkListSplitSize-sized pieces, writes each
// as its own chunk, and puts a ChunkListObject binding them in order
// (SPEC_FULL §4 "Chunk-list objects for large files").
func (s *Store) writeChunkList(ctx context.Context, f *os.File, path string) (objid.ObjId, error) {
	var members []objid.ChunkId
	var total uint64

	for {
		piece := io.LimitReader(f, ChunkListSplitSize)
		sum, size, err := incrementalHash(piece, s.Method)
		if err != nil {
			return objid.ObjId{}, derr.Wrap(derr.IoError, "writeChunkList", path, err)
		}
		if size == 0 {
			break
		}

		chunkId := objid.ChunkId{ObjId: objid.ObjId{ObjType: objid.ChunkObjType, Method: s.Method, Digest: sum}}
		if _, err := f.Seek(int64(total), io.SeekStart); err != nil {
			return objid.ObjId{}, derr.Wrap(derr.IoError, "writeChunkList", path, err)
		}
		if err := s.writeChunkFromOffset(ctx, f, chunkId, uint64(size)); err != nil {
			return objid.ObjId{}, err
		}

		members = append(members, chunkId)
		total += uint64(size)
		if size < ChunkListSplitSize {
			break
		}
	}

	list := ChunkListObject{Chunks: members, TotalSize: total}
	listId, canon, err := objid.ComputeObjIdFromValue(ChunkListObjType, list.AsValue(), s.Method)
	if err != nil {
		return objid.ObjId{}, derr.Wrap(derr.IoError, "writeChunkList", path, err)
	}
	if err := s.PutObject(listId, canon); err != nil {
		return objid.ObjId{}, err
	}
	return listId, nil
}

func (s *Store) writeChunkFromOffset(ctx context.Context, f *os.File, chunkId objid.ChunkId, size uint64) error {
	w, _, err := s.Chunks.OpenChunkWriter(ctx, chunkId, size, 0)
	if err != nil {
		if derr.KindOf(err) == derr.AlreadyExists {
			return nil
		}
		return err
	}
	buf := make([]byte, 256*1024)
	var written uint64
	for written < size {
		toRead := uint64(len(buf))
		if remaining := size - written; remaining < toRead {
			toRead = remaining
		}
		n, rerr := f.Read(buf[:toRead])
		if n > 0 {
			if _, werr := w.Write(ctx, buf[:n]); werr != nil {
				return werr
			}
			written += uint64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return derr.Wrap(derr.IoError, "writeChunkFromOffset", chunkId.String(), rerr)
		}
	}
	return w.Complete(ctx)
}

func incrementalHash(r io.Reader, m hash.Method) (hash.Hash, int64, error) {
	buf := make([]byte, 256*1024)
	var all []byte
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			all = append(all, buf[:n]...)
			total += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return hash.Hash{}, 0, err
		}
	}
	return hash.OfWithMethod(all, m), total, nil
}
