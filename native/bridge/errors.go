package bridge

import "errors"

var (
	// ErrUnauthorized indicates the caller lacks the role the operation
	// requires (admin for registry mutations, the validator itself for
	// heartbeats).
	ErrUnauthorized = errors.New("bridge: caller not authorized")
	// ErrValidatorExists indicates a registration for an already-known
	// address.
	ErrValidatorExists = errors.New("bridge: validator already registered")
	// ErrValidatorUnknown indicates the address is not in the registry.
	ErrValidatorUnknown = errors.New("bridge: validator not registered")
	// ErrStakeTooLow indicates the offered stake is below the policy minimum.
	ErrStakeTooLow = errors.New("bridge: stake below minimum")
	// ErrAlreadyExecuted indicates the message digest is in the executed set.
	ErrAlreadyExecuted = errors.New("bridge: message already executed")
	// ErrMessageExpired indicates the message timestamp is older than the
	// configured timeout.
	ErrMessageExpired = errors.New("bridge: message expired")
	// ErrInsufficientSignatures indicates fewer distinct active validators
	// signed the digest than the configured threshold.
	ErrInsufficientSignatures = errors.New("bridge: insufficient signatures")
	// ErrUnknownTarget indicates no handler is registered for the message
	// target.
	ErrUnknownTarget = errors.New("bridge: unknown target")
	// ErrTargetCallFailed wraps an error returned by the target handler. The
	// digest stays in the executed set regardless.
	ErrTargetCallFailed = errors.New("bridge: target call failed")
	// ErrPaused indicates the bridge-wide kill switch is engaged.
	ErrPaused = errors.New("bridge: paused")
	// ErrInvalidMessage indicates the message body failed validation.
	ErrInvalidMessage = errors.New("bridge: invalid message")
	// ErrNilMessage indicates a nil message was supplied.
	ErrNilMessage = errors.New("bridge: message must not be nil")
	// ErrNilValidator indicates a nil validator entry was supplied.
	ErrNilValidator = errors.New("bridge: validator must not be nil")
)
