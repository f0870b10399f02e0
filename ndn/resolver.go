package ndn

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cyfs-go/ndncore/chunks"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
	"github.com/cyfs-go/ndncore/objstore"
)

// Kind is what a Resolution ultimately names.
type Kind int

const (
	KindChunk Kind = iota
	KindObject
	KindScalar
	KindChunkList
)

// Resolution is the outcome of resolving one ndn URL (spec.md §4.4.3).
type Resolution struct {
	Kind Kind
	Id   objid.ObjId

	// Body carries the canonical JSON (KindObject) or JSON-encoded scalar
	// (KindScalar). Unused for KindChunk.
	Body []byte

	// Chunk is set only for KindChunk; the caller owns it and must Close it.
	Chunk         *chunks.Reader
	ChunkTotalLen uint64

	// ChunkListIds is set only for KindChunkList: the ordered member chunks
	// a caller streams and concatenates to reconstruct the logical body.
	ChunkListIds []objid.ChunkId

	// RootId is set if the request resolved through an R-link or an inner
	// path: the id of the outer object.
	RootId *objid.ObjId

	// PathObjCanonical is set only for R-link responses: the canonical
	// bytes of the object bound at {obj-path}.
	PathObjCanonical []byte
}

// Size is the byte length of the resolved payload.
func (r *Resolution) Size() uint64 {
	if r.Kind == KindChunk || r.Kind == KindChunkList {
		return r.ChunkTotalLen
	}
	return uint64(len(r.Body))
}

// Resolver implements the resolver algorithm (spec.md §4.4.3) over a Store.
type Resolver struct {
	Store *objstore.Store
}

func NewResolver(store *objstore.Store) *Resolver {
	return &Resolver{Store: store}
}

// Resolve parses and resolves urlPath (everything after "/ndn/").
func (r *Resolver) Resolve(ctx context.Context, urlPath string) (*Resolution, error) {
	segs := SplitSegments(urlPath)
	if len(segs) == 0 {
		return nil, derr.New(derr.InvalidId, "Resolve", "empty ndn path")
	}

	if objid.LooksLikeObjId(segs[0]) {
		id, err := objid.Parse(segs[0])
		if err != nil {
			return nil, derr.Wrap(derr.InvalidId, "Resolve", urlPath, err)
		}
		inner := strings.Join(segs[1:], "/")
		return r.finish(ctx, id, inner, nil)
	}

	// R-link: longest-prefix match against the named-path table, treating
	// whatever is left over as the inner path.
	for end := len(segs); end >= 1; end-- {
		candidate := "/" + strings.Join(segs[:end], "/")
		entry, err := r.Store.Paths.Resolve(candidate)
		if err != nil {
			if derr.KindOf(err) == derr.NotFound {
				continue
			}
			return nil, err
		}
		inner := strings.Join(segs[end:], "/")
		pathObjId := entry.ObjId
		var pathObjCanon []byte
		if raw, ok, gerr := r.Store.Objects.Get(pathObjId); gerr == nil && ok {
			pathObjCanon = raw
		}
		return r.finish(ctx, pathObjId, inner, pathObjCanon)
	}
	return nil, derr.New(derr.NotFound, "Resolve", "unbound path "+urlPath)
}

func isChunkId(id objid.ObjId) bool {
	return id.ObjType == objid.ChunkObjType || id.ObjType == objid.MixObjType
}

func (r *Resolver) finish(ctx context.Context, id objid.ObjId, inner string, pathObjCanon []byte) (*Resolution, error) {
	var rootId *objid.ObjId
	if pathObjCanon != nil {
		root := id
		rootId = &root
	}

	if inner == "" {
		if isChunkId(id) {
			reader, total, err := r.Store.Chunks.OpenChunkReader(ctx, objid.ChunkId{ObjId: id}, 0, false)
			if err != nil {
				return nil, err
			}
			return &Resolution{Kind: KindChunk, Id: id, Chunk: reader, ChunkTotalLen: total, RootId: rootId, PathObjCanonical: pathObjCanon}, nil
		}
		raw, ok, err := r.Store.Objects.Get(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, derr.New(derr.NotFound, "Resolve", id.String())
		}
		if id.ObjType == objstore.ChunkListObjType {
			var list objstore.ChunkListObject
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, derr.Wrap(derr.IoError, "Resolve", id.String(), err)
			}
			return &Resolution{Kind: KindChunkList, Id: id, ChunkListIds: list.Chunks, ChunkTotalLen: list.TotalSize, RootId: rootId, PathObjCanonical: pathObjCanon}, nil
		}
		return &Resolution{Kind: KindObject, Id: id, Body: raw, RootId: rootId, PathObjCanonical: pathObjCanon}, nil
	}

	val, err := r.Store.GetObject(id, inner)
	if err != nil {
		return nil, err
	}

	// The value the inner path selected may itself be an ObjId (e.g.
	// FileObject.content -> a ChunkId): dereference it and serve the target's
	// own bytes, rooted at the outer object, rather than handing back the id
	// string as an inert scalar (spec.md §8 scenarios 3/4; grounded on
	// original_source's ndn_2_zone_o_link_innerpath_file_ok, which expects
	// GET /ndn/{file-id}/content to behave like GET /ndn/{chunk-id}).
	if s, ok := val.(string); ok && objid.LooksLikeObjId(s) {
		if innerId, perr := objid.Parse(s); perr == nil {
			res, ferr := r.finish(ctx, innerId, "", pathObjCanon)
			if ferr != nil {
				return nil, ferr
			}
			root := id
			res.RootId = &root
			return res, nil
		}
	}

	body, err := json.Marshal(val)
	if err != nil {
		return nil, derr.Wrap(derr.IoError, "Resolve", id.String(), err)
	}
	root := id
	return &Resolution{Kind: KindScalar, Id: id, Body: body, RootId: &root, PathObjCanonical: pathObjCanon}, nil
}
