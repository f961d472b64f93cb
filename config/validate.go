package config

import (
	"fmt"
	"strings"

	"crosslock/crypto"
	"crosslock/native/policy"
)

// Validate checks a loaded configuration for internal consistency before the
// node wires any subsystem.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	local := policy.NormalizeChainRef(cfg.LocalChainRef)
	if local == "" {
		return fmt.Errorf("config: LocalChainRef required")
	}
	seen := make(map[string]struct{}, len(cfg.Chains))
	localListed := false
	for _, chain := range cfg.Chains {
		ref := policy.NormalizeChainRef(chain.Ref)
		if ref == "" {
			return fmt.Errorf("config: chain ref must not be empty")
		}
		if _, dup := seen[ref]; dup {
			return fmt.Errorf("config: duplicate chain ref %q", ref)
		}
		seen[ref] = struct{}{}
		if chain.ConfirmationBuffer < 0 {
			return fmt.Errorf("config: chain %q has negative confirmation buffer", ref)
		}
		if ref == local {
			localListed = true
		}
	}
	if !localListed {
		return fmt.Errorf("config: LocalChainRef %q missing from Chains", local)
	}
	if cfg.Fees.Bps > policy.MaxFeeBps {
		return fmt.Errorf("config: Fees.Bps %d exceeds ceiling %d", cfg.Fees.Bps, policy.MaxFeeBps)
	}
	if strings.TrimSpace(cfg.Fees.Collector) != "" {
		if _, err := crypto.DecodeAddress(cfg.Fees.Collector); err != nil {
			return fmt.Errorf("config: Fees.Collector: %w", err)
		}
	}
	if cfg.Bridge.RequiredSignatures == 0 {
		return fmt.Errorf("config: Bridge.RequiredSignatures must be positive")
	}
	if cfg.Bridge.MessageTimeoutSeconds <= 0 {
		return fmt.Errorf("config: Bridge.MessageTimeoutSeconds must be positive")
	}
	if _, err := cfg.Bridge.MinStakeAmount(); err != nil {
		return fmt.Errorf("config: Bridge.MinStake: %w", err)
	}
	if _, err := cfg.Bridge.SlashAmountValue(); err != nil {
		return fmt.Errorf("config: Bridge.SlashAmount: %w", err)
	}
	if cfg.RPC.RateLimitPerSecond < 0 || cfg.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("config: RPC rate limit values must not be negative")
	}
	return nil
}

// ChainInfos converts the configured chains into the policy registry form.
func (cfg *Config) ChainInfos() []policy.ChainInfo {
	infos := make([]policy.ChainInfo, 0, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		infos = append(infos, policy.ChainInfo{
			Ref:                chain.Ref,
			Name:               chain.Name,
			ConfirmationBuffer: chain.ConfirmationBuffer,
		})
	}
	return infos
}
