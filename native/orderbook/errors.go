package orderbook

import "errors"

var (
	ErrNilOrder          = errors.New("orderbook: nil order")
	ErrNotFound          = errors.New("orderbook: order not found")
	ErrAlreadyExists     = errors.New("orderbook: order already exists")
	ErrInvalidState      = errors.New("orderbook: invalid state for operation")
	ErrUnauthorized      = errors.New("orderbook: caller not authorized")
	ErrInvalidAmount     = errors.New("orderbook: amount must be positive")
	ErrInvalidAsset      = errors.New("orderbook: invalid asset")
	ErrBadSecret         = errors.New("orderbook: secret does not match commitment")
	ErrOrderExpired      = errors.New("orderbook: order deadline passed")
	ErrOrderNotExpired   = errors.New("orderbook: order deadline not reached")
	ErrTakerMismatch     = errors.New("orderbook: order reserved for another taker")
	ErrResolverUnknown   = errors.New("orderbook: resolver not registered")
	ErrResolverInactive  = errors.New("orderbook: resolver inactive")
	ErrResolverChain     = errors.New("orderbook: resolver does not serve destination chain")
	ErrResolverFeeTooLow = errors.New("orderbook: declared fee below resolver minimum")
	ErrHTLCNotRefunded   = errors.New("orderbook: backing htlc not refunded")
)
