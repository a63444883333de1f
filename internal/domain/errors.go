package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Ledger failure kinds. Every failed operation returns a *LedgerError whose
// Kind is one of these; errors.Is matches against them.
var (
	// Precondition violations.
	ErrInvalidSupply             = errors.New("invalid supply")
	ErrEmptyContentPointer       = errors.New("empty content pointer")
	ErrUnknownRecord             = errors.New("unknown record")
	ErrInvalidRecipient          = errors.New("invalid recipient")
	ErrListAmountMustBeAboveZero = errors.New("list amount must be above zero")
	ErrAlreadyListed             = errors.New("already listed")
	ErrNotListed                 = errors.New("not listed")
	ErrAccessDenied              = errors.New("access denied")
	ErrAlreadyHaveThisNFT        = errors.New("already have this nft")
	ErrPriceNotMet               = errors.New("price not met")
	ErrNoProceeds                = errors.New("no proceeds")
	ErrOverflow                  = errors.New("arithmetic overflow")

	// Authorization violations.
	ErrNotApprovedForMarketplace = errors.New("not approved for marketplace")
	ErrNotApproved               = errors.New("not approved")

	// Resource violations.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// External transfer failures.
	ErrTransferFailed = errors.New("transfer failed")
)

// ErrorClass groups failure kinds by who has to act on them.
type ErrorClass string

const (
	ClassPrecondition  ErrorClass = "precondition"
	ClassAuthorization ErrorClass = "authorization"
	ClassResource      ErrorClass = "resource"
	ClassExternal      ErrorClass = "external"
	ClassInternal      ErrorClass = "internal"
)

var errorClasses = map[error]ErrorClass{
	ErrInvalidSupply:             ClassPrecondition,
	ErrEmptyContentPointer:       ClassPrecondition,
	ErrUnknownRecord:             ClassPrecondition,
	ErrInvalidRecipient:          ClassPrecondition,
	ErrListAmountMustBeAboveZero: ClassPrecondition,
	ErrAlreadyListed:             ClassPrecondition,
	ErrNotListed:                 ClassPrecondition,
	ErrAccessDenied:              ClassPrecondition,
	ErrAlreadyHaveThisNFT:        ClassPrecondition,
	ErrPriceNotMet:               ClassPrecondition,
	ErrNoProceeds:                ClassPrecondition,
	ErrOverflow:                  ClassPrecondition,
	ErrNotApprovedForMarketplace: ClassAuthorization,
	ErrNotApproved:               ClassAuthorization,
	ErrInsufficientBalance:       ClassResource,
	ErrTransferFailed:            ClassExternal,
}

// ErrorKinds lists every failure kind in a stable order.
var ErrorKinds = []error{
	ErrInvalidSupply,
	ErrEmptyContentPointer,
	ErrUnknownRecord,
	ErrInvalidRecipient,
	ErrListAmountMustBeAboveZero,
	ErrAlreadyListed,
	ErrNotListed,
	ErrAccessDenied,
	ErrAlreadyHaveThisNFT,
	ErrPriceNotMet,
	ErrNoProceeds,
	ErrOverflow,
	ErrNotApprovedForMarketplace,
	ErrNotApproved,
	ErrInsufficientBalance,
	ErrTransferFailed,
}

// LedgerError is a rejected ledger operation with the context needed to act on it.
type LedgerError struct {
	Op       string    // operation name, e.g. "buyItem"
	Kind     error     // one of the Err* kinds above
	Caller   Address   // identity that made the call
	Seller   Address   // listing owner, when different from caller
	RecordID *RecordID // nil when the operation is not record-scoped
	Cause    error     // underlying failure (e.g. payment channel error)
}

// NewError creates a LedgerError for op failing with kind.
func NewError(op string, kind error, caller Address) *LedgerError {
	return &LedgerError{Op: op, Kind: kind, Caller: caller}
}

// WithRecord sets the record context.
func (e *LedgerError) WithRecord(id RecordID) *LedgerError {
	e.RecordID = &id
	return e
}

// WithSeller sets the listing owner context.
func (e *LedgerError) WithSeller(seller Address) *LedgerError {
	e.Seller = seller
	return e
}

// WithCause attaches the underlying failure.
func (e *LedgerError) WithCause(err error) *LedgerError {
	e.Cause = err
	return e
}

func (e *LedgerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v (caller=%s", e.Op, e.Kind, e.Caller)
	if e.Seller != "" {
		fmt.Fprintf(&b, ", seller=%s", e.Seller)
	}
	if e.RecordID != nil {
		fmt.Fprintf(&b, ", record=%d", *e.RecordID)
	}
	b.WriteString(")")
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *LedgerError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Class returns the class of e's kind.
func (e *LedgerError) Class() ErrorClass {
	return ClassOf(e.Kind)
}

// ClassOf returns the class of err, or ClassInternal if err is not a ledger failure.
func ClassOf(err error) ErrorClass {
	for _, kind := range ErrorKinds {
		if errors.Is(err, kind) {
			return errorClasses[kind]
		}
	}
	return ClassInternal
}

// KindOf returns the ledger failure kind of err, or nil.
func KindOf(err error) error {
	for _, kind := range ErrorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
