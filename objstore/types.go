// Package objstore implements the object half of the Named-Data Manager
// (C2): object put/get, the named-path table, and the built-in object
// types (spec.md §3, §4.2). It is grounded on the teacher's go/store/datas
// idiom of a content-addressed value bound to a mutable name, generalized
// to ndncore's JSON object model.
package objstore

import "github.com/cyfs-go/ndncore/objid"

// FileObjType is the obj_type tag for FileObject.
const FileObjType = "file"

// ChunkListObjType is the obj_type tag for ChunkListObject (SPEC_FULL §4).
const ChunkListObjType = "chunklist"

// FileObject is a file whose bytes live in one chunk, or (SPEC_FULL §4) in
// a ChunkListObject for large files.
type FileObject struct {
	Name    string      `json:"name"`
	Size    uint64      `json:"size"`
	Content objid.ObjId `json:"content"`
}

// AsValue returns the JSON-marshalable map form used for canonicalization.
func (f FileObject) AsValue() map[string]any {
	return map[string]any{
		"name":    f.Name,
		"size":    f.Size,
		"content": f.Content.String(),
	}
}

// ChunkListObject concatenates a sequence of chunks into one logical byte
// stream, for files too large to fit in a single chunk (SPEC_FULL §4).
type ChunkListObject struct {
	Chunks    []objid.ChunkId `json:"chunks"`
	TotalSize uint64          `json:"total_size"`
}

func (c ChunkListObject) AsValue() map[string]any {
	ids := make([]any, len(c.Chunks))
	for i, id := range c.Chunks {
		ids[i] = id.String()
	}
	return map[string]any{
		"chunks":     ids,
		"total_size": c.TotalSize,
	}
}

// PathEntry is one named-path table row (spec.md §3 "Named path").
type PathEntry struct {
	ObjPath   string
	ObjId     objid.ObjId
	AppId     string
	UserId    string
	CreatedTs int64
}
