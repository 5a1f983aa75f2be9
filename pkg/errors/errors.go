package errors

import "errors"

var (
	ErrInvalidAmount            = errors.New("amount must be a positive decimal")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrAccountNotFound          = errors.New("account not found")
	ErrUnauthorized             = errors.New("only chama leaders can withdraw funds")
	ErrConcurrencyConflict      = errors.New("account is locked by another operation")
	ErrDuplicateReference       = errors.New("duplicate reference code")
	ErrImmutableRecord          = errors.New("audit log entries cannot be modified or deleted")
	ErrNotMember                = errors.New("user is not a member of this chama")
	ErrChamaNotFound            = errors.New("chama not found")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrNilTransaction           = errors.New("transaction is nil")
	ErrInvalidTransactionKind   = errors.New("invalid transaction kind")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
)
