package types

import (
	"fmt"
	"strings"
)

// NormalizeAsset canonicalises an asset reference to its uppercase symbol.
// The empty string is rejected; the native sentinel passes through unchanged.
func NormalizeAsset(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("asset symbol required")
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' {
			return "", fmt.Errorf("invalid asset symbol: %s", symbol)
		}
	}
	return trimmed, nil
}
