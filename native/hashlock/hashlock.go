package hashlock

import (
	"crypto/subtle"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrEmptySecret indicates a zero-length secret was supplied.
	ErrEmptySecret = errors.New("hashlock: secret must not be empty")
	// ErrZeroCommitment indicates the all-zero commitment sentinel was supplied
	// where a real commitment is required.
	ErrZeroCommitment = errors.New("hashlock: commitment must not be zero")
	// ErrDeadlineTooSoon indicates the deadline falls inside the minimum window.
	ErrDeadlineTooSoon = errors.New("hashlock: deadline too soon")
	// ErrDeadlineTooFar indicates the deadline exceeds the maximum window.
	ErrDeadlineTooFar = errors.New("hashlock: deadline too far")
)

// Commitment is the 256-bit hash of a secret. Revealing a secret that hashes
// to it is the unlock proof for the corresponding lock.
type Commitment [32]byte

// IsZero reports whether the commitment is the all-zero sentinel.
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// Commit derives the commitment for a secret. Keccak-256, matching the digest
// used for record identifiers so both sides of a swap can compute it
// independently.
func Commit(secret []byte) (Commitment, error) {
	if len(secret) == 0 {
		return Commitment{}, ErrEmptySecret
	}
	var c Commitment
	copy(c[:], ethcrypto.Keccak256(secret))
	return c, nil
}

// Verify reports whether the secret hashes to the commitment. Constant-time
// comparison; the commitment itself is public so this is hygiene rather than
// a hard requirement.
func Verify(secret []byte, commitment Commitment) bool {
	if len(secret) == 0 || commitment.IsZero() {
		return false
	}
	hash := ethcrypto.Keccak256(secret)
	return subtle.ConstantTimeCompare(hash, commitment[:]) == 1
}

// ValidateDeadline checks an absolute unix deadline against the policy bounds
// [now+minWindow, now+maxWindow]. Windows are expressed in seconds.
func ValidateDeadline(deadline, now, minWindow, maxWindow int64) error {
	if deadline <= now+minWindow {
		return fmt.Errorf("%w: deadline %d, earliest allowed %d", ErrDeadlineTooSoon, deadline, now+minWindow+1)
	}
	if maxWindow > 0 && deadline > now+maxWindow {
		return fmt.Errorf("%w: deadline %d, latest allowed %d", ErrDeadlineTooFar, deadline, now+maxWindow)
	}
	return nil
}
