package ndnclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/ndn"
	"github.com/cyfs-go/ndncore/objid"
)

// GetObjByUrl fetches the object or scalar at url. If expectedId is set and
// the response is a full object (no inner path folded it down to a
// scalar), the client recomputes the canonical id over the received bytes
// and rejects a mismatch with VerifyError. If the response resolved
// through an R-link or inner path, the outer object is additionally
// verified via cyfs-path-obj/cyfs-root-obj-id.
func (c *Client) GetObjByUrl(ctx context.Context, url string, expectedId *objid.ObjId) (objid.ObjId, any, error) {
	resp, err := c.do(ctx, "GET", url, nil)
	if err != nil {
		return objid.ObjId{}, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return objid.ObjId{}, nil, derr.Wrap(derr.IoError, "GetObjByUrl", url, err)
	}

	idStr := resp.Header.Get(ndn.HeaderObjId)
	id, err := objid.Parse(idStr)
	if err != nil {
		return objid.ObjId{}, nil, derr.Wrap(derr.VerifyError, "GetObjByUrl", url, err)
	}

	rootStr := resp.Header.Get(ndn.HeaderRootObjId)
	if pathObjB64 := resp.Header.Get(ndn.HeaderPathObj); rootStr != "" && pathObjB64 != "" {
		rootId, err := objid.Parse(rootStr)
		if err != nil {
			return objid.ObjId{}, nil, derr.Wrap(derr.VerifyError, "GetObjByUrl", url, err)
		}
		canon, err := base64.StdEncoding.DecodeString(pathObjB64)
		if err != nil {
			return objid.ObjId{}, nil, derr.Wrap(derr.VerifyError, "GetObjByUrl", url, err)
		}
		if objid.ComputeObjId(rootId.ObjType, canon, rootId.Method) != rootId {
			return objid.ObjId{}, nil, derr.New(derr.VerifyError, "GetObjByUrl", "outer object hash mismatch for "+url)
		}
	}

	// A full-object response is one where the returned body is the whole
	// object's canonical bytes, i.e. nothing resolved through an inner path
	// past this id (root, if present, equals id itself).
	isFullObject := rootStr == "" || rootStr == idStr
	if isFullObject {
		if expectedId != nil && id != *expectedId {
			return objid.ObjId{}, nil, derr.New(derr.VerifyError, "GetObjByUrl", "unexpected obj id for "+url)
		}
		if objid.ComputeObjId(id.ObjType, body, id.Method) != id {
			return objid.ObjId{}, nil, derr.New(derr.VerifyError, "GetObjByUrl", "content hash mismatch for "+url)
		}
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return objid.ObjId{}, nil, derr.Wrap(derr.IoError, "GetObjByUrl", url, err)
	}
	return id, decoded, nil
}
