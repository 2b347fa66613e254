package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrAccountNotFound   = errors.New("account not found")
	ErrDuplicateAccount  = errors.New("duplicate account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// ErrTransactionNotFound is returned by TransactionLog.GetTransaction for unknown ids.
var ErrTransactionNotFound = errors.New("transaction not found")

// Error carries the kind of a ledger failure along with the offending field.
type Error struct {
	Kind    error
	Field   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Field != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func validationError(field, msg string) error {
	return &Error{Kind: ErrValidation, Field: field, Message: msg}
}

// AccountNotFound reports a missing account.
func AccountNotFound(accountNumber string) error {
	return &Error{Kind: ErrAccountNotFound, Field: "accountNumber", Message: fmt.Sprintf("account %q not found", accountNumber)}
}

// DuplicateAccount reports an account number collision.
func DuplicateAccount(accountNumber string) error {
	return &Error{Kind: ErrDuplicateAccount, Field: "accountNumber", Message: fmt.Sprintf("account %q already exists", accountNumber)}
}

// StoreUnavailable wraps an infrastructure failure of a store implementation.
func StoreUnavailable(op string, cause error) error {
	return &Error{Kind: ErrStoreUnavailable, Message: op, Cause: cause}
}

// FieldOf returns the offending field recorded on err, if any.
func FieldOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Field
	}
	return ""
}
