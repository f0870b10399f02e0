package chunks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/objid"
)

func TestLocalPutGet(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewMemBackend())

	data := make([]byte, 1024*1024+513)
	for i := range data {
		data[i] = byte(i)
	}
	id := objid.ComputeChunkId(data, hash.Sha256)

	w, _, err := mgr.OpenChunkWriter(ctx, id, uint64(len(data)), 0)
	require.NoError(t, err)
	_, err = w.Write(ctx, data)
	require.NoError(t, err)
	require.NoError(t, w.Complete(ctx))

	progress, err := mgr.QueryChunkState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Completed, progress.State)

	r, size, err := mgr.OpenChunkReader(ctx, id, 0, false)
	require.NoError(t, err)
	defer r.Close()
	assert.EqualValues(t, len(data), size)

	got := make([]byte, size)
	_, err = readFull(r, got)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewMemBackend())
	id := objid.ComputeChunkId([]byte("abc"), hash.Sha256)

	w, _, err := mgr.OpenChunkWriter(ctx, id, 3, 0)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Complete(ctx))
	require.NoError(t, w.Complete(ctx)) // no-op success
}

func TestCompleteMismatchGoesCorrupt(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewMemBackend())
	id := objid.ComputeChunkId([]byte("abc"), hash.Sha256)

	w, _, err := mgr.OpenChunkWriter(ctx, id, 3, 0)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("xyz")) // wrong bytes for this id
	require.NoError(t, err)

	err = w.Complete(ctx)
	require.Error(t, err)
	assert.Equal(t, derr.VerifyError, derr.KindOf(err))

	progress, err := mgr.QueryChunkState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Corrupt, progress.State)
}

func TestCompleteMismatchGoesCorruptOnFSBackend(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewFSBackend(t.TempDir()))
	id := objid.ComputeChunkId([]byte("abc"), hash.Sha256)

	w, _, err := mgr.OpenChunkWriter(ctx, id, 3, 0)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("xyz")) // wrong bytes for this id
	require.NoError(t, err)

	err = w.Complete(ctx)
	require.Error(t, err)
	assert.Equal(t, derr.VerifyError, derr.KindOf(err))

	progress, err := mgr.QueryChunkState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, Corrupt, progress.State)
}

func TestOpenChunkReaderFailsUntilCompleted(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewMemBackend())
	id := objid.ComputeChunkId([]byte("abc"), hash.Sha256)

	_, _, err := mgr.OpenChunkReader(ctx, id, 0, false)
	require.Error(t, err)
	assert.Equal(t, derr.NotFound, derr.KindOf(err))

	w, _, err := mgr.OpenChunkWriter(ctx, id, 3, 0)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("ab"))
	require.NoError(t, err)

	_, _, err = mgr.OpenChunkReader(ctx, id, 0, false)
	require.Error(t, err)
	assert.Equal(t, derr.InComplete, derr.KindOf(err))
}

func TestOpenChunkWriterAlreadyExists(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewMemBackend())
	id := objid.ComputeChunkId([]byte("abc"), hash.Sha256)

	w, _, err := mgr.OpenChunkWriter(ctx, id, 3, 0)
	require.NoError(t, err)
	_, err = w.Write(ctx, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Complete(ctx))

	_, _, err = mgr.OpenChunkWriter(ctx, id, 3, 0)
	require.Error(t, err)
	assert.Equal(t, derr.AlreadyExists, derr.KindOf(err))
}

// TestConcurrentWritersExactlyOneCompletes demonstrates spec.md §8's
// concurrency property: N parallel open->write->complete attempts on the
// same id yield exactly one success, and every reader launched in parallel
// eventually observes Completed and reads the full bytes.
func TestConcurrentWritersExactlyOneCompletes(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager("local", NewMemBackend())

	data := []byte("the quick brown fox jumps over the lazy dog")
	id := objid.ComputeChunkId(data, hash.Sha256)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		inComplete int
		alreadyExists int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, _, err := mgr.OpenChunkWriter(ctx, id, uint64(len(data)), 0)
			if err != nil {
				mu.Lock()
				switch derr.KindOf(err) {
				case derr.InComplete:
					inComplete++
				case derr.AlreadyExists:
					alreadyExists++
				}
				mu.Unlock()
				return
			}
			_, werr := w.Write(ctx, data)
			require.NoError(t, werr)
			if cerr := w.Complete(ctx); cerr == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, inComplete+alreadyExists)

	var readersWg sync.WaitGroup
	okCount := make([]bool, n)
	for i := 0; i < n; i++ {
		readersWg.Add(1)
		go func(i int) {
			defer readersWg.Done()
			for {
				progress, err := mgr.QueryChunkState(ctx, id)
				require.NoError(t, err)
				if progress.State == Completed {
					break
				}
			}
			r, size, err := mgr.OpenChunkReader(ctx, id, 0, false)
			require.NoError(t, err)
			defer r.Close()
			got := make([]byte, size)
			_, err = readFull(r, got)
			require.NoError(t, err)
			okCount[i] = string(got) == string(data)
		}(i)
	}
	readersWg.Wait()

	for i, ok := range okCount {
		assert.True(t, ok, "reader %d did not read the full completed bytes", i)
	}
}

func readFull(r *Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
