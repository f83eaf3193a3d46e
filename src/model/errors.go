package model

import "errors"

// Error classes shared across packages. Callers use errors.Is to classify.
var (
	// ErrValidation marks a candidate or order rejected before any gate ran.
	ErrValidation = errors.New("validation failed")
	// ErrAdmissionVeto marks a candidate blocked by an admission gate.
	ErrAdmissionVeto = errors.New("admission veto")
	// ErrAccounting marks a fill whose ledger transaction was rolled back.
	ErrAccounting = errors.New("accounting failure")
	// ErrNotFound is returned when a row expected to exist is missing.
	ErrNotFound = errors.New("not found")
)
