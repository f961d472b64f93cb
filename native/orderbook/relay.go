package orderbook

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// BridgeTargetOrderComplete is the bridge target name the matcher registers
// for inbound secret relays. Relayers watching the destination chain package
// the revealed secret under this target so the source leg settles without the
// resolver submitting a second transaction.
const BridgeTargetOrderComplete = "order.complete"

type secretRelayPayload struct {
	OrderID [32]byte
	Secret  []byte
}

// EncodeSecretRelay packs an order id and its revealed secret into the bridge
// payload format.
func EncodeSecretRelay(orderID [32]byte, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("orderbook: relay secret required")
	}
	return rlp.EncodeToBytes(&secretRelayPayload{OrderID: orderID, Secret: secret})
}

// DecodeSecretRelay unpacks a bridge payload produced by EncodeSecretRelay.
func DecodeSecretRelay(payload []byte) ([32]byte, []byte, error) {
	var decoded secretRelayPayload
	if err := rlp.DecodeBytes(payload, &decoded); err != nil {
		return [32]byte{}, nil, fmt.Errorf("orderbook: malformed relay payload: %w", err)
	}
	if len(decoded.Secret) == 0 {
		return [32]byte{}, nil, fmt.Errorf("orderbook: relay secret required")
	}
	return decoded.OrderID, decoded.Secret, nil
}

// CompleteFromRelay settles a Matched order from a relayed secret reveal. The
// withdrawal runs on behalf of the order's resolver, who is the recipient of
// the backing lock; every CompleteOrder check still applies.
func (e *Engine) CompleteFromRelay(payload []byte) (*Order, error) {
	orderID, secret, err := DecodeSecretRelay(payload)
	if err != nil {
		return nil, err
	}
	order, err := e.Get(orderID)
	if err != nil {
		return nil, err
	}
	return e.CompleteOrder(orderID, secret, order.Resolver)
}
