// Package ndnserver implements the NDN HTTP surface (spec.md §4.4): a
// gorilla/mux-routed server over an ndn.Resolver, wired to C5 for bearer
// token authentication, in the handler style of the retrieved corpus's own
// HTTP servers (e.g. orbas1-Synnergy's cmd/xchainserver/server).
package ndnserver

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/internal/logging"
	"github.com/cyfs-go/ndncore/ndn"
	"github.com/cyfs-go/ndncore/objid"
)

// TokenVerifier authenticates the bearer token on an inbound request,
// per spec.md §4.4.5/§4.5.3. C5's trust.HubVerifier implements this.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, bearer string) (userId, appId string, err error)
}

// DeviceVerifier authenticates a per-device-signed local-zone request
// (SPEC_FULL §4 "Device-key-scoped trust"), bypassing verify-hub entirely.
// payload is the {method, path} descriptor the signature covers.
type DeviceVerifier interface {
	VerifyDevice(ctx context.Context, deviceId string, payload any, sig []byte) error
}

// Server serves /ndn/... over an ndn.Resolver.
type Server struct {
	Resolver *ndn.Resolver
	Verifier TokenVerifier  // nil disables bearer-token authentication (tests, local tools)
	Devices  DeviceVerifier // nil disables the device-signed fast path

	access zerolog.Logger
	router *mux.Router
}

func NewServer(resolver *ndn.Resolver, verifier TokenVerifier) *Server {
	s := &Server{Resolver: resolver, Verifier: verifier, access: logging.NewAccessLogger()}
	r := mux.NewRouter()
	r.HandleFunc("/ndn/{rest:.*}", s.handleGet).Methods(http.MethodGet)
	s.router = r
	return s
}

func (s *Server) Router() http.Handler {
	return loggingMiddleware(s.access, s.router)
}

func loggingMiddleware(access zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		access.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Msg("ndn request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// authenticate tries the device-signed fast path first, then falls back to
// bearer-JWT verification, per SPEC_FULL §4's description of ndnserver's
// authentication order.
func (s *Server) authenticate(r *http.Request) (userId, appId string, err error) {
	if s.Devices != nil {
		deviceId := r.Header.Get(ndn.HeaderDeviceId)
		sigB64 := r.Header.Get(ndn.HeaderDeviceSig)
		if deviceId != "" && sigB64 != "" {
			sig, decErr := base64.StdEncoding.DecodeString(sigB64)
			if decErr != nil {
				return "", "", derr.Wrap(derr.InvalidToken, "authenticate", "malformed device signature", decErr)
			}
			payload := map[string]string{"method": r.Method, "path": r.URL.Path}
			if verr := s.Devices.VerifyDevice(r.Context(), deviceId, payload, sig); verr != nil {
				return "", "", verr
			}
			return deviceId, "", nil
		}
	}

	if s.Verifier == nil {
		return "", "", nil
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", "", derr.New(derr.InvalidToken, "authenticate", "missing bearer token")
	}
	return s.Verifier.VerifyToken(r.Context(), strings.TrimPrefix(auth, prefix))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.authenticate(r); err != nil {
		writeError(w, err)
		return
	}

	rest := mux.Vars(r)["rest"]
	res, err := s.Resolver.Resolve(r.Context(), rest)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Chunk != nil {
		defer res.Chunk.Close()
	}

	w.Header().Set(ndn.HeaderObjId, res.Id.String())
	w.Header().Set(ndn.HeaderObjSize, strconv.FormatUint(res.Size(), 10))
	if res.RootId != nil {
		w.Header().Set(ndn.HeaderRootObjId, res.RootId.String())
	}
	if res.PathObjCanonical != nil {
		w.Header().Set(ndn.HeaderPathObj, base64.StdEncoding.EncodeToString(res.PathObjCanonical))
	}

	switch res.Kind {
	case ndn.KindChunkList:
		s.serveChunkList(w, r, res)
	case ndn.KindChunk:
		s.serveChunk(w, r, res)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
	}
}

// serveChunkList streams a chunk-list object's body by opening each member
// chunk in order and concatenating them (SPEC_FULL §4). Range requests
// against a chunk-list are not supported: a partial read would need to
// locate the spanning member chunk first, which the NDN url grammar has no
// primitive for.
func (s *Server) serveChunkList(w http.ResponseWriter, r *http.Request, res *ndn.Resolution) {
	if r.Header.Get("Range") != "" {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatUint(res.ChunkTotalLen, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	for _, chunkId := range res.ChunkListIds {
		reader, _, err := s.Resolver.Store.Chunks.OpenChunkReader(r.Context(), chunkId, 0, false)
		if err != nil {
			return
		}
		_, _ = io.Copy(w, reader)
		reader.Close()
	}
}

// serveChunk streams a chunk body honoring a single-range Range header
// (spec.md §4.4.2); without one it streams the full chunk from offset 0.
func (s *Server) serveChunk(w http.ResponseWriter, r *http.Request, res *ndn.Resolution) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, res.Chunk)
		return
	}

	start, end, ok := parseRange(rangeHeader, res.ChunkTotalLen)
	if !ok {
		w.Header().Set("Content-Range", "bytes */"+strconv.FormatUint(res.ChunkTotalLen, 10))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	ranged, _, err := s.Resolver.Store.Chunks.OpenChunkReader(r.Context(), objid.ChunkId{ObjId: res.Id}, start, true)
	if err != nil {
		writeError(w, err)
		return
	}
	defer ranged.Close()

	length := end - start + 1
	w.Header().Set("Content-Range", "bytes "+strconv.FormatUint(start, 10)+"-"+strconv.FormatUint(end, 10)+"/"+strconv.FormatUint(res.ChunkTotalLen, 10))
	w.Header().Set(ndn.HeaderObjSize, strconv.FormatUint(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.CopyN(w, ranged, int64(length))
}

// parseRange parses a single "bytes=start-end" or "bytes=start-" range
// header against a resource of the given size.
func parseRange(header string, size uint64) (start, end uint64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, 0, false // multi-range not supported
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	startStr, endStr := parts[0], parts[1]
	if startStr == "" {
		// suffix range: last N bytes
		n, err := strconv.ParseUint(endStr, 10, 64)
		if err != nil || n == 0 || n > size {
			return 0, 0, false
		}
		return size - n, size - 1, true
	}
	s, err := strconv.ParseUint(startStr, 10, 64)
	if err != nil || s >= size {
		return 0, 0, false
	}
	if endStr == "" {
		return s, size - 1, true
	}
	e, err := strconv.ParseUint(endStr, 10, 64)
	if err != nil || e < s {
		return 0, 0, false
	}
	if e >= size {
		e = size - 1
	}
	return s, e, true
}

func writeError(w http.ResponseWriter, err error) {
	kind := derr.KindOf(err)
	http.Error(w, err.Error(), kind.HTTPStatus())
}
