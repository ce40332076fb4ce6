package library

import "errors"

// Lookup and input errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrMissingID          = errors.New("missing id")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Circulation errors
var (
	ErrBookUnavailable = errors.New("book is not available for borrowing")
	ErrNotBorrowed     = errors.New("book is not currently borrowed")
	ErrNotBorrower     = errors.New("member did not borrow this book")
	ErrAlreadyReturned = errors.New("loan already returned")
	ErrActiveLoans     = errors.New("record has active loans")
)

// Fine errors
var (
	ErrOutstandingFine = errors.New("cannot return book with outstanding fine")
	ErrInvalidPayment  = errors.New("payment amount must be positive")
	ErrOverpayment     = errors.New("payment exceeds outstanding balance")
)
