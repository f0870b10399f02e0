// Package chunks implements the chunk side of the Named-Data Manager (C2):
// the local chunk byte store and its streaming writer/reader state machine.
// Objects and the named-path table live in package objstore. It is grounded
// on the teacher's go/store/chunks
// package (Chunk, ChunkWriter, ChunkStore, ReadBatch) generalized to the
// spec's resumable, at-most-one-completer writer semantics.
package chunks

import (
	"bytes"
	"io"

	"github.com/cyfs-go/ndncore/hash"
)

// Chunk is an immutable byte sequence plus its content hash.
type Chunk struct {
	h    hash.Hash
	data []byte
}

// EmptyChunk is the canonical empty chunk, returned by ChunkStore.Get for a
// miss so callers never need to nil-check (mirrors the teacher's idiom).
var EmptyChunk = NewChunk(nil)

// NewChunk wraps data, computing its hash eagerly.
func NewChunk(data []byte) Chunk {
	return Chunk{h: hash.Of(data), data: data}
}

// NewChunkWithHash wraps data with a pre-computed hash, trusting the caller.
// Used when the hash has already been verified by an incremental reader.
func NewChunkWithHash(h hash.Hash, data []byte) Chunk {
	return Chunk{h: h, data: data}
}

func (c Chunk) Hash() hash.Hash { return c.h }
func (c Chunk) Data() []byte    { return c.data }
func (c Chunk) Size() int       { return len(c.data) }
func (c Chunk) IsEmpty() bool   { return c.h == EmptyChunk.h }

// ChunkWriter accumulates bytes for a single chunk and finalizes it into a
// Chunk on Close or Chunk. It panics on Write after either, the same
// contract the teacher's chunks.ChunkWriter enforces.
type ChunkWriter struct {
	buf    bytes.Buffer
	closed bool
}

// NewChunkWriter returns a ready-to-use ChunkWriter.
func NewChunkWriter() *ChunkWriter {
	return &ChunkWriter{}
}

func (w *ChunkWriter) Write(p []byte) (int, error) {
	if w.closed {
		panic("chunks: Write after Close/Chunk")
	}
	return w.buf.Write(p)
}

// Close finalizes the writer. It is idempotent.
func (w *ChunkWriter) Close() error {
	w.closed = true
	return nil
}

// Chunk finalizes the writer (if not already) and returns the Chunk.
func (w *ChunkWriter) Chunk() Chunk {
	w.closed = true
	return NewChunk(append([]byte(nil), w.buf.Bytes()...))
}

var _ io.Writer = (*ChunkWriter)(nil)
