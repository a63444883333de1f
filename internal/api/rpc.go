package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/observability"
	"file-nft-market/internal/rpc"
)

const ctxRPCMethod = "rpc_method"

// maxBodyBytes bounds a single JSON-RPC request.
const maxBodyBytes = 1 << 20

type methodFunc func(ctx context.Context, caller domain.Address, params json.RawMessage) (any, error)

type methodHandler struct {
	needsCaller bool // reject the call unless X-Caller carries a valid address
	fn          methodFunc
}

// HandleRPC serves one JSON-RPC 2.0 request. Protocol and ledger errors are
// returned in the response body with HTTP 200.
func (s *Server) HandleRPC(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req rpc.Request
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		s.reply(c, "", rpc.NewErrorResponse(nil, &rpc.Error{Code: rpc.CodeParseError, Message: "parse error: " + err.Error()}))
		return
	}
	c.Set(ctxRPCMethod, req.Method)

	if req.JSONRPC != rpc.Version || req.Method == "" {
		s.reply(c, "", rpc.NewErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeInvalidRequest, Message: "invalid request"}))
		return
	}

	h, ok := s.methods[req.Method]
	if !ok {
		s.reply(c, "", rpc.NewErrorResponse(req.ID, &rpc.Error{
			Code:    rpc.CodeMethodNotFound,
			Message: fmt.Sprintf("method %q not found", req.Method),
		}))
		return
	}

	var caller domain.Address
	if h.needsCaller {
		var err error
		caller, err = domain.ParseAddress(c.GetHeader(rpc.CallerHeader))
		if err != nil {
			s.reply(c, req.Method, rpc.NewErrorResponse(req.ID, rpc.InvalidParams(rpc.CallerHeader+": "+err.Error())))
			return
		}
	}

	result, err := h.fn(c.Request.Context(), caller, req.Params)
	if err != nil {
		s.reply(c, req.Method, rpc.NewErrorResponse(req.ID, s.toRPCError(req.Method, err)))
		return
	}

	resp, err := rpc.NewResponse(req.ID, result)
	if err != nil {
		s.log.Error("marshal rpc result", zap.String("method", req.Method), zap.Error(err))
		resp = rpc.NewErrorResponse(req.ID, &rpc.Error{Code: rpc.CodeInternalError, Message: "internal error"})
	}
	s.reply(c, req.Method, resp)
}

// reply writes resp and counts it. An empty method is counted as "invalid".
func (s *Server) reply(c *gin.Context, method string, resp *rpc.Response) {
	code := 0
	if resp.Error != nil {
		code = resp.Error.Code
	}
	if method == "" {
		method = "invalid"
	}
	observability.RecordRPC(method, code)
	c.JSON(http.StatusOK, resp)
}

// toRPCError maps a handler error to its wire form. Ledger failures carry
// their kind, class and context in Data; storage and internal errors are
// reported without detail.
func (s *Server) toRPCError(method string, err error) *rpc.Error {
	var rerr *rpc.Error
	if errors.As(err, &rerr) {
		return rerr
	}

	if kind := domain.KindOf(err); kind != nil {
		data := &rpc.ErrorData{Kind: kind.Error(), Class: string(domain.ClassOf(kind))}
		var lerr *domain.LedgerError
		if errors.As(err, &lerr) {
			data.Caller = lerr.Caller
			data.Seller = lerr.Seller
			data.RecordID = lerr.RecordID
		}
		return &rpc.Error{Code: rpc.CodeForKind(kind), Message: err.Error(), Data: data}
	}

	if errors.Is(err, engine.ErrStorage) {
		return &rpc.Error{Code: rpc.CodeStorageUnavailable, Message: rpc.ErrStorageUnavailable.Error()}
	}

	s.log.Error("rpc call failed", zap.String("method", method), zap.Error(err))
	return &rpc.Error{Code: rpc.CodeInternalError, Message: "internal error"}
}

// decode unmarshals params into T. Absent params decode to the zero value.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, rpc.InvalidParams("invalid params: " + err.Error())
	}
	return v, nil
}

// address validates a required address parameter.
func address(name string, a domain.Address) error {
	if _, err := domain.ParseAddress(string(a)); err != nil {
		return rpc.InvalidParams(name + ": " + err.Error())
	}
	return nil
}
