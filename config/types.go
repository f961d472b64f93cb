package config

import (
	"fmt"
	"math/big"
	"strings"
)

// ChainConfig describes one ledger the node recognises for order matching and
// bridge messaging.
type ChainConfig struct {
	Ref                string `toml:"Ref"`
	Name               string `toml:"Name"`
	ConfirmationBuffer int64  `toml:"ConfirmationBufferSeconds"`
}

// Fees configures the lock fee policy.
type Fees struct {
	Bps       uint32 `toml:"Bps"`
	Collector string `toml:"Collector"` // bech32 account address
}

// Bridge configures the relayed message policy. Amounts are decimal strings
// so operators never hit TOML integer limits on large-denomination stakes.
type Bridge struct {
	RequiredSignatures    uint32 `toml:"RequiredSignatures"`
	MessageTimeoutSeconds int64  `toml:"MessageTimeoutSeconds"`
	MinStake              string `toml:"MinStake"`
	SlashAmount           string `toml:"SlashAmount"`
}

// RPC configures the JSON-RPC surface.
type RPC struct {
	AuthToken          string  `toml:"AuthToken"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Log configures structured log output.
type Log struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Pauses holds the per-module admin kill switches applied at startup.
type Pauses struct {
	HTLC      bool `toml:"HTLC"`
	Orderbook bool `toml:"Orderbook"`
	Bridge    bool `toml:"Bridge"`
}

// MinStakeAmount parses the configured minimum stake.
func (b Bridge) MinStakeAmount() (*big.Int, error) {
	return parseUintAmount(b.MinStake)
}

// SlashAmountValue parses the configured slash amount.
func (b Bridge) SlashAmountValue() (*big.Int, error) {
	return parseUintAmount(b.SlashAmount)
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("amount must be a non-negative decimal string, got %q", raw)
	}
	return value, nil
}
