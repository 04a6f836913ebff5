package domain

import "errors"

var (
	ErrInvalidClaim  = errors.New("invalid_claim")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrBankNotFound  = errors.New("claim_bank_not_found")
)
