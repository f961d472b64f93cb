package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"crosslock/native/bridge"
	"crosslock/storage"
)

type storedValidator struct {
	Addr       [20]byte
	Stake      *big.Int
	Active     bool
	JoinedAt   *big.Int
	LastSeen   *big.Int
	SlashCount uint32
}

// ValidatorPut persists a registry entry and keeps the enumeration list
// current.
func (m *Manager) ValidatorPut(v *bridge.ValidatorInfo) error {
	sanitized, err := bridge.SanitizeValidator(v)
	if err != nil {
		return err
	}
	stored := &storedValidator{
		Addr:       sanitized.Addr,
		Stake:      new(big.Int).Set(sanitized.Stake),
		Active:     sanitized.Active,
		JoinedAt:   big.NewInt(sanitized.JoinedAt),
		LastSeen:   big.NewInt(sanitized.LastSeen),
		SlashCount: sanitized.SlashCount,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.db.Put(storageKey(validatorPrefix, sanitized.Addr[:]), encoded); err != nil {
		return err
	}
	return m.appendValidatorList(sanitized.Addr)
}

func (m *Manager) appendValidatorList(addr [20]byte) error {
	addrs, err := m.validatorAddresses()
	if err != nil {
		return err
	}
	for _, existing := range addrs {
		if existing == addr {
			return nil
		}
	}
	addrs = append(addrs, addr)
	encoded, err := rlp.EncodeToBytes(addrs)
	if err != nil {
		return err
	}
	return m.db.Put(storageKey(validatorListKey, nil), encoded)
}

// ValidatorGet loads a registry entry.
func (m *Manager) ValidatorGet(addr [20]byte) (*bridge.ValidatorInfo, bool) {
	m.mu.Lock()
	data, err := m.db.Get(storageKey(validatorPrefix, addr[:]))
	m.mu.Unlock()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedValidator)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	validator := &bridge.ValidatorInfo{
		Addr:       stored.Addr,
		Stake:      big.NewInt(0),
		Active:     stored.Active,
		SlashCount: stored.SlashCount,
	}
	if stored.Stake != nil {
		validator.Stake = new(big.Int).Set(stored.Stake)
	}
	if stored.JoinedAt != nil {
		validator.JoinedAt = stored.JoinedAt.Int64()
	}
	if stored.LastSeen != nil {
		validator.LastSeen = stored.LastSeen.Int64()
	}
	return validator, true
}

// ValidatorAddresses enumerates the registry in registration order.
func (m *Manager) ValidatorAddresses() ([][20]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validatorAddresses()
}

func (m *Manager) validatorAddresses() ([][20]byte, error) {
	data, err := m.db.Get(storageKey(validatorListKey, nil))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var addrs [][20]byte
	if err := rlp.DecodeBytes(data, &addrs); err != nil {
		return nil, fmt.Errorf("state: decode validator list: %w", err)
	}
	return addrs, nil
}

type storedBridgeConfig struct {
	RequiredSignatures uint32
	MessageTimeout     *big.Int
	MinStake           *big.Int
	SlashAmount        *big.Int
	Paused             bool
}

// BridgeConfigPut persists the bridge policy.
func (m *Manager) BridgeConfigPut(cfg *bridge.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil bridge config")
	}
	stored := &storedBridgeConfig{
		RequiredSignatures: cfg.RequiredSignatures,
		MessageTimeout:     big.NewInt(cfg.MessageTimeout),
		MinStake:           big.NewInt(0),
		SlashAmount:        big.NewInt(0),
		Paused:             cfg.Paused,
	}
	if cfg.MinStake != nil {
		stored.MinStake = new(big.Int).Set(cfg.MinStake)
	}
	if cfg.SlashAmount != nil {
		stored.SlashAmount = new(big.Int).Set(cfg.SlashAmount)
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(storageKey(bridgeConfigKey, nil), encoded)
}

// BridgeConfigGet loads the bridge policy.
func (m *Manager) BridgeConfigGet() (*bridge.Config, bool) {
	m.mu.Lock()
	data, err := m.db.Get(storageKey(bridgeConfigKey, nil))
	m.mu.Unlock()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedBridgeConfig)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	cfg := &bridge.Config{
		RequiredSignatures: stored.RequiredSignatures,
		MinStake:           big.NewInt(0),
		SlashAmount:        big.NewInt(0),
		Paused:             stored.Paused,
	}
	if stored.MessageTimeout != nil {
		cfg.MessageTimeout = stored.MessageTimeout.Int64()
	}
	if stored.MinStake != nil {
		cfg.MinStake = new(big.Int).Set(stored.MinStake)
	}
	if stored.SlashAmount != nil {
		cfg.SlashAmount = new(big.Int).Set(stored.SlashAmount)
	}
	return cfg, true
}

// ExecutedInsert records a message digest as executed. Append-only.
func (m *Manager) ExecutedInsert(digest [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(storageKey(executedPrefix, digest[:]), []byte{1})
}

// ExecutedHas reports membership in the executed-digest set.
func (m *Manager) ExecutedHas(digest [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok, err := m.db.Has(storageKey(executedPrefix, digest[:]))
	return err == nil && ok
}

// OutboundNonceNext allocates the next outbound bridge message nonce.
func (m *Manager) OutboundNonceNext() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storageKey(outboundNonceKey, nil)
	nonce, err := m.loadUint64(key)
	if err != nil {
		return 0, err
	}
	if err := m.writeUint64(key, nonce+1); err != nil {
		return 0, err
	}
	return nonce, nil
}
