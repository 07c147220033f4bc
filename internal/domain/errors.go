package domain

import "github.com/pkg/errors"

var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidLedgerEntry = errors.New("invalid ledger entry")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidIntegration = errors.New("invalid integration")
)
