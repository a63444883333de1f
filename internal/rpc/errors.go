package rpc

import (
	"errors"

	"file-nft-market/internal/domain"
)

// Standard JSON-RPC 2.0 codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Server-defined codes.
const (
	CodeStorageUnavailable = -32050
)

// ErrStorageUnavailable is what a client sees for CodeStorageUnavailable.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Codes are part of the public protocol; never renumber an existing kind.
var kindCodes = map[error]int{
	domain.ErrInvalidSupply:             -32001,
	domain.ErrEmptyContentPointer:       -32002,
	domain.ErrUnknownRecord:             -32003,
	domain.ErrInvalidRecipient:          -32004,
	domain.ErrListAmountMustBeAboveZero: -32005,
	domain.ErrAlreadyListed:             -32006,
	domain.ErrNotListed:                 -32007,
	domain.ErrAccessDenied:              -32008,
	domain.ErrAlreadyHaveThisNFT:        -32009,
	domain.ErrPriceNotMet:               -32010,
	domain.ErrNoProceeds:                -32011,
	domain.ErrOverflow:                  -32012,
	domain.ErrNotApprovedForMarketplace: -32013,
	domain.ErrNotApproved:               -32014,
	domain.ErrInsufficientBalance:       -32015,
	domain.ErrTransferFailed:            -32016,
}

var codeKinds = func() map[int]error {
	m := make(map[int]error, len(kindCodes)+1)
	for kind, code := range kindCodes {
		m[code] = kind
	}
	m[CodeStorageUnavailable] = ErrStorageUnavailable
	return m
}()

// CodeForKind returns the error code of a ledger failure kind, or
// CodeInternalError for anything else.
func CodeForKind(kind error) int {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return CodeInternalError
}

// KindForCode returns the sentinel for code, or nil.
func KindForCode(code int) error {
	return codeKinds[code]
}

// InvalidParams builds a CodeInvalidParams error.
func InvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}
