// Package rpc defines the JSON-RPC 2.0 wire protocol spoken by the API server
// and its Go client: envelopes, method names, parameter and result shapes,
// and the mapping between ledger failure kinds and error codes.
package rpc

import (
	"encoding/json"
	"fmt"

	"file-nft-market/internal/domain"
)

// Version is the only accepted jsonrpc value.
const Version = "2.0"

// CallerHeader carries the identity a request acts as.
const CallerHeader = "X-Caller"

// Request is a JSON-RPC 2.0 request. ID is kept raw so any client id echoes back unchanged.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData describes a rejected ledger operation.
type ErrorData struct {
	Kind     string           `json:"kind"`
	Class    string           `json:"class"`
	Caller   domain.Address   `json:"caller,omitempty"`
	Seller   domain.Address   `json:"seller,omitempty"`
	RecordID *domain.RecordID `json:"recordId,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Unwrap returns the ledger failure kind for e's code, so errors.Is matches
// domain sentinels on the client side.
func (e *Error) Unwrap() error {
	return KindForCode(e.Code)
}

// NewResponse builds a success response, marshalling result.
func NewResponse(id json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: nullID(id), Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, e *Error) *Response {
	return &Response{JSONRPC: Version, ID: nullID(id), Error: e}
}

func nullID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// Notification is a server push over the event stream.
type Notification struct {
	JSONRPC string              `json:"jsonrpc"`
	Method  string              `json:"method"`
	Params  *NotificationParams `json:"params"`
}

// NotificationParams wraps one event for one subscription.
type NotificationParams struct {
	Subscription uint64       `json:"subscription"`
	Result       domain.Event `json:"result"`
}
