// Package ndnclient implements the verification-enforcing NDN HTTP client
// (spec.md §4.4.4): every fetch checks what it receives against an
// expected id, retries transport/5xx/429 failures with backoff, and
// coalesces concurrent pulls for the same chunk through a single flight.
package ndnclient

import (
	"context"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/cyfs-go/ndncore/chunks"
	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/internal/netutil"
)

// Client is the NDN HTTP client, pulling into and pushing from a local
// chunk Manager.
type Client struct {
	HTTP   *http.Client
	Chunks *chunks.Manager

	sf singleflight.Group
}

func New(chunkMgr *chunks.Manager) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: netutil.DefaultTimeout},
		Chunks: chunkMgr,
	}
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, derr.Wrap(derr.IoError, "ndnclient.do", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	var resp *http.Response
	err = netutil.Do(ctx, func() error {
		r, reqErr := c.HTTP.Do(req)
		if reqErr != nil {
			return reqErr
		}
		resp = r
		if r.StatusCode >= 300 {
			return &netutil.HTTPStatusError{StatusCode: r.StatusCode, Body: r.Status}
		}
		return nil
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, classifyTransportErr(err)
	}
	return resp, nil
}

func classifyTransportErr(err error) error {
	if statusErr, ok := err.(*netutil.HTTPStatusError); ok {
		switch {
		case statusErr.StatusCode == http.StatusNotFound:
			return derr.New(derr.NotFound, "ndnclient", statusErr.Error())
		case statusErr.StatusCode == http.StatusUnauthorized:
			return derr.New(derr.InvalidToken, "ndnclient", statusErr.Error())
		case statusErr.StatusCode == http.StatusForbidden:
			return derr.New(derr.NoPermission, "ndnclient", statusErr.Error())
		case statusErr.StatusCode == 422:
			return derr.New(derr.VerifyError, "ndnclient", statusErr.Error())
		default:
			return derr.New(derr.IoError, "ndnclient", statusErr.Error())
		}
	}
	return derr.Wrap(derr.IoError, "ndnclient", "", err)
}
