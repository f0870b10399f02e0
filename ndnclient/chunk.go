package ndnclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"

	"github.com/cyfs-go/ndncore/chunks"
	"github.com/cyfs-go/ndncore/hash"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/internal/netutil"
	"github.com/cyfs-go/ndncore/objid"
	"github.com/cyfs-go/ndncore/objstore"
)

// verifyingReadCloser buffers the bytes it streams and, at EOF, checks them
// against an expected chunk id — the same buffer-then-hash-once approach
// chunks.Manager's own hashReader uses for Complete(), generalized to a
// streamed HTTP body instead of a local partial file.
type verifyingReadCloser struct {
	rc       io.ReadCloser
	buf      bytes.Buffer
	method   hash.Method
	expected *objid.ChunkId
	checked  bool
}

func (v *verifyingReadCloser) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	if n > 0 {
		v.buf.Write(p[:n])
	}
	if err == io.EOF {
		if verr := v.verify(); verr != nil {
			return n, verr
		}
	}
	return n, err
}

func (v *verifyingReadCloser) verify() error {
	if v.expected == nil || v.checked {
		return nil
	}
	v.checked = true
	data := v.buf.Bytes()
	sum := hash.OfWithMethod(data, v.method)

	var ok bool
	if v.expected.ObjType == objid.MixObjType {
		mixId := objid.MixChunkIdFromDigest(uint64(len(data)), sum, v.method)
		ok = mixId.Digest == v.expected.Digest
	} else {
		ok = sum == v.expected.Digest
	}
	if !ok {
		return derr.New(derr.VerifyError, "ndnclient", "chunk hash mismatch on "+v.expected.String())
	}
	return nil
}

func (v *verifyingReadCloser) Close() error {
	return v.rc.Close()
}

// OpenChunkReaderByUrl fetches url and returns a reader that verifies the
// received bytes against expectedChunkId at EOF, unless rangeHeader is set
// (a ranged read cannot be checked against the whole chunk's digest without
// a merkle path, per spec.md §4.4.2's optional cyfs-mtree-path).
func (c *Client) OpenChunkReaderByUrl(ctx context.Context, url string, expectedChunkId *objid.ChunkId, rangeHeader string) (io.ReadCloser, http.Header, error) {
	var headers map[string]string
	if rangeHeader != "" {
		headers = map[string]string{"Range": rangeHeader}
	}
	resp, err := c.do(ctx, "GET", url, headers)
	if err != nil {
		return nil, nil, err
	}

	method := hash.Sha256
	var expect *objid.ChunkId
	if rangeHeader == "" {
		expect = expectedChunkId
	}
	if expectedChunkId != nil {
		method = expectedChunkId.Method
	}
	return &verifyingReadCloser{rc: resp.Body, method: method, expected: expect}, resp.Header, nil
}

// PullChunkByUrl downloads the chunk at url into the local chunk manager,
// verifying against expectedChunkId. Concurrent calls for the same id
// coalesce: exactly one network fetch happens, and every caller observes
// the same Completed state on success.
func (c *Client) PullChunkByUrl(ctx context.Context, url string, expectedChunkId objid.ChunkId) (int64, error) {
	v, err, _ := c.sf.Do(expectedChunkId.String(), func() (any, error) {
		return c.pullChunkOnce(ctx, url, expectedChunkId)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (c *Client) pullChunkOnce(ctx context.Context, url string, id objid.ChunkId) (int64, error) {
	if st, err := c.Chunks.QueryChunkState(ctx, id); err == nil && st.State == chunks.Completed {
		return int64(st.WrittenLen), nil
	}

	resp, err := c.do(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, derr.Wrap(derr.IoError, "PullChunkByUrl", url, err)
	}

	w, _, err := c.Chunks.OpenChunkWriter(ctx, id, uint64(len(body)), 0)
	if err != nil {
		if derr.KindOf(err) == derr.AlreadyExists {
			return int64(len(body)), nil
		}
		return 0, err
	}
	if _, err := w.Write(ctx, body); err != nil {
		return 0, err
	}
	if err := w.Complete(ctx); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

// DownloadChunkToLocal writes the chunk at url to destPath, removing the
// partial file if end-of-stream verification fails.
func (c *Client) DownloadChunkToLocal(ctx context.Context, url string, expectedChunkId objid.ChunkId, destPath string, noVerify bool) error {
	var expect *objid.ChunkId
	if !noVerify {
		expect = &expectedChunkId
	}
	rc, _, err := c.OpenChunkReaderByUrl(ctx, url, expect, "")
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return derr.Wrap(derr.IoError, "DownloadChunkToLocal", destPath, err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		if derr.KindOf(err) == derr.VerifyError {
			os.Remove(destPath)
		}
		return err
	}
	return f.Close()
}

// DownloadChunkListToLocal reconstructs a chunk-list object's body at
// destPath (SPEC_FULL §4): each member chunk is fetched from baseUrl+"/"+id
// and verified independently against its own digest, then the running byte
// count is checked against list.TotalSize once every member has streamed.
// The partial file is removed on any verification failure.
func (c *Client) DownloadChunkListToLocal(ctx context.Context, baseUrl string, list objstore.ChunkListObject, destPath string) error {
	f, err := os.Create(destPath)
	if err != nil {
		return derr.Wrap(derr.IoError, "DownloadChunkListToLocal", destPath, err)
	}

	var written uint64
	for _, chunkId := range list.Chunks {
		rc, _, err := c.OpenChunkReaderByUrl(ctx, baseUrl+"/"+chunkId.String(), &chunkId, "")
		if err != nil {
			f.Close()
			os.Remove(destPath)
			return err
		}
		n, err := io.Copy(f, rc)
		rc.Close()
		if err != nil {
			f.Close()
			os.Remove(destPath)
			return err
		}
		written += uint64(n)
	}

	if written != list.TotalSize {
		f.Close()
		os.Remove(destPath)
		return derr.New(derr.VerifyError, "DownloadChunkListToLocal", "total size mismatch for "+destPath)
	}
	return f.Close()
}

// PushChunk uploads a locally-held completed chunk's bytes to url.
func (c *Client) PushChunk(ctx context.Context, url string, chunkId objid.ChunkId) error {
	reader, _, err := c.Chunks.OpenChunkReader(ctx, chunkId, 0, false)
	if err != nil {
		return err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return derr.Wrap(derr.IoError, "PushChunk", url, err)
	}

	return netutil.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return &netutil.HTTPStatusError{StatusCode: resp.StatusCode, Body: resp.Status}
		}
		return nil
	})
}
