package services

import "errors"

var (
	// ErrDuplicatePayment means the payment reference was already credited.
	// Callers should treat it as "already counted", not as a failure to retry.
	ErrDuplicatePayment = errors.New("transaction already processed")
	// ErrBelowMinimum means the paid amount does not cover one ticket.
	ErrBelowMinimum = errors.New("amount below minimum ticket price")
	// ErrInvalidPurchase means a required purchase field is missing.
	ErrInvalidPurchase = errors.New("invalid purchase")
	// ErrPaymentUnverified means the payment verifier rejected the payment.
	ErrPaymentUnverified = errors.New("payment could not be verified")
	ErrRoundNotFound     = errors.New("round not found")
	// ErrPoolOverflow means crediting the payment would overflow the round's pool.
	ErrPoolOverflow = errors.New("round pool would overflow")
	// ErrInconsistentState means the ledger is in a state no operation
	// should have produced.
	ErrInconsistentState = errors.New("inconsistent ledger state")
)
