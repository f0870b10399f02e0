package kapi

import (
	"encoding/json"

	"github.com/cyfs-go/ndncore/internal/derr"
	"github.com/cyfs-go/ndncore/trust"
)

// NewVerifyHubService builds the "verify_hub" kapi service exposing
// login/verify_token over the JSON-RPC envelope, mirroring
// original_source/src/kernel/verify_hub's own `/kapi/verify-hub` RPC
// surface (method "login" with params.type of "jwt" or "password", and a
// separate "verify_token" method).
func NewVerifyHubService(hub *trust.Hub) *Service {
	svc := NewService("verify_hub")
	svc.Register("login", loginHandler(hub))
	svc.Register("verify_token", verifyTokenHandler(hub))
	return svc
}

type loginParams struct {
	Type     string `json:"type"`
	Jwt      string `json:"jwt"`
	Username string `json:"username"`
	AppId    string `json:"appid"`
	Nonce    int64  `json:"nonce"`
	Hash     string `json:"hash"`
}

type tokenPairResult struct {
	SessionToken string `json:"session_token"`
	RefreshToken string `json:"refresh_token"`
}

func loginHandler(hub *trust.Hub) Handler {
	return func(rctx RequestContext, raw json.RawMessage) (any, error) {
		var params loginParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, badRequest("kapi.verify_hub.login", "malformed params")
		}

		var (
			pair trust.TokenPair
			err  error
		)
		switch params.Type {
		case "jwt":
			pair, err = hub.LoginByJWT(rctx.Ctx, params.Jwt, params.AppId)
		case "password":
			pair, err = hub.LoginByPassword(rctx.Ctx, params.Username, params.AppId, params.Nonce, params.Hash)
		default:
			return nil, badRequest("kapi.verify_hub.login", "unknown login type: "+params.Type)
		}
		if err != nil {
			return nil, err
		}
		return tokenPairResult{SessionToken: pair.SessionToken, RefreshToken: pair.RefreshToken}, nil
	}
}

type verifyTokenParams struct {
	SessionToken string `json:"session_token"`
	AppId        string `json:"appid"`
}

func verifyTokenHandler(hub *trust.Hub) Handler {
	return func(rctx RequestContext, raw json.RawMessage) (any, error) {
		var params verifyTokenParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, badRequest("kapi.verify_hub.verify_token", "malformed params")
		}
		if params.SessionToken == "" {
			return nil, derr.New(derr.InvalidToken, "kapi.verify_hub.verify_token", "missing session_token")
		}
		claims, err := hub.VerifyToken(params.SessionToken, params.AppId)
		if err != nil {
			return nil, err
		}
		return claims, nil
	}
}
