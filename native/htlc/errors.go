package htlc

import "errors"

var (
	ErrNilRecord         = errors.New("htlc: nil record")
	ErrNotFound          = errors.New("htlc: record not found")
	ErrAlreadyExists     = errors.New("htlc: record already exists")
	ErrInvalidState      = errors.New("htlc: invalid state for operation")
	ErrUnauthorized      = errors.New("htlc: caller not authorized")
	ErrBadSecret         = errors.New("htlc: secret does not match commitment")
	ErrExpired           = errors.New("htlc: deadline passed")
	ErrNotYetExpired     = errors.New("htlc: deadline not reached")
	ErrInvalidAmount     = errors.New("htlc: amount must be positive")
	ErrInvalidAsset      = errors.New("htlc: invalid asset")
	ErrZeroRecipient     = errors.New("htlc: recipient required")
	ErrEmptyBatch        = errors.New("htlc: batch must not be empty")
	ErrDuplicateInBatch  = errors.New("htlc: duplicate id within batch")
	ErrInsufficientFunds = errors.New("htlc: insufficient balance")
	ErrTransferFailed    = errors.New("htlc: asset transfer failed")
)
