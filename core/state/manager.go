package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"crosslock/core/types"
	"crosslock/storage"
)

// ErrInsufficientBalance indicates an account balance cannot cover a debit.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

const (
	accountPrefix        = "crosslock/account/"
	htlcRecordPrefix     = "crosslock/htlc/record/"
	htlcIndexPrefix      = "crosslock/htlc/index/"
	orderRecordPrefix    = "crosslock/order/record/"
	orderIndexPrefix     = "crosslock/order/index/"
	orderNoncePrefix     = "crosslock/order/nonce/"
	resolverPrefix       = "crosslock/order/resolver/"
	validatorPrefix      = "crosslock/bridge/validator/"
	validatorListKey     = "crosslock/bridge/validators"
	bridgeConfigKey      = "crosslock/bridge/config"
	executedPrefix       = "crosslock/bridge/executed/"
	outboundNonceKey     = "crosslock/bridge/outbound-nonce"
	vaultAddressPreimage = "crosslock/module/vault"
)

// Manager is the authoritative persistence layer shared by the three engines.
// All mutating entry points serialize on one mutex; the engines add their own
// per-module locks on top, so a cross-engine operation such as an order take
// that creates a lock still observes consistent balances.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager wraps a key-value database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func storageKey(prefix string, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}

// VaultAddress is the module account holding escrowed and locked funds. No
// spending key exists for it; derived from a fixed preimage so it is stable
// across nodes.
func VaultAddress() [20]byte {
	hash := ethcrypto.Keccak256([]byte(vaultAddressPreimage))
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

type storedBalance struct {
	Symbol string
	Amount *big.Int
}

type storedAccount struct {
	Nonce    uint64
	Balances []storedBalance
}

func newStoredAccount(acc *types.Account) *storedAccount {
	stored := &storedAccount{Nonce: acc.Nonce}
	symbols := make([]string, 0, len(acc.Balances))
	for symbol := range acc.Balances {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		amount := acc.Balances[symbol]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		stored.Balances = append(stored.Balances, storedBalance{Symbol: symbol, Amount: new(big.Int).Set(amount)})
	}
	return stored
}

func (s *storedAccount) toAccount() *types.Account {
	acc := &types.Account{Nonce: s.Nonce, Balances: make(map[string]*big.Int, len(s.Balances))}
	for _, balance := range s.Balances {
		amount := big.NewInt(0)
		if balance.Amount != nil {
			amount = new(big.Int).Set(balance.Amount)
		}
		acc.Balances[balance.Symbol] = amount
	}
	return acc
}

// GetAccount loads an account, returning an empty one for unknown addresses.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAccount(addr)
}

func (m *Manager) getAccount(addr [20]byte) (*types.Account, error) {
	data, err := m.db.Get(storageKey(accountPrefix, addr[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{Balances: make(map[string]*big.Int)}, nil
	}
	if err != nil {
		return nil, err
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode account %x: %w", addr, err)
	}
	return stored.toAccount(), nil
}

// PutAccount persists an account.
func (m *Manager) PutAccount(addr [20]byte, acc *types.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.putAccount(addr, acc)
}

func (m *Manager) putAccount(addr [20]byte, acc *types.Account) error {
	if acc == nil {
		return fmt.Errorf("state: nil account")
	}
	encoded, err := rlp.EncodeToBytes(newStoredAccount(acc))
	if err != nil {
		return err
	}
	return m.db.Put(storageKey(accountPrefix, addr[:]), encoded)
}

// Credit adds funds to an account. Used at genesis and by test tooling.
func (m *Manager) Credit(addr [20]byte, asset string, amt *big.Int) error {
	if amt == nil || amt.Sign() <= 0 {
		return fmt.Errorf("state: credit amount must be positive")
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.getAccount(addr)
	if err != nil {
		return err
	}
	balance := acc.Balance(normalized)
	acc.SetBalance(normalized, new(big.Int).Add(balance, amt))
	return m.putAccount(addr, acc)
}

// AccountBalance reports the balance an account holds in one asset.
func (m *Manager) AccountBalance(addr [20]byte, asset string) (*big.Int, error) {
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, err := m.getAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance(normalized)), nil
}

// VaultCredit moves funds from an account into the module vault.
func (m *Manager) VaultCredit(from [20]byte, asset string, amt *big.Int) error {
	if amt == nil || amt.Sign() <= 0 {
		return fmt.Errorf("state: vault credit amount must be positive")
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfer(from, VaultAddress(), normalized, amt)
}

// VaultDebit releases funds from the module vault to an account.
func (m *Manager) VaultDebit(asset string, amt *big.Int, to [20]byte) error {
	if amt == nil || amt.Sign() <= 0 {
		return fmt.Errorf("state: vault debit amount must be positive")
	}
	normalized, err := types.NormalizeAsset(asset)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transfer(VaultAddress(), to, normalized, amt)
}

// transfer moves amt between two accounts, restoring the first write if the
// second fails. Callers hold m.mu.
func (m *Manager) transfer(from, to [20]byte, asset string, amt *big.Int) error {
	fromAcc, err := m.getAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := m.getAccount(to)
	if err != nil {
		return err
	}
	originalFrom := fromAcc.Clone()

	fromBalance := fromAcc.Balance(asset)
	if fromBalance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: account %x holds %v %s, needs %v", ErrInsufficientBalance, from, fromBalance, asset, amt)
	}
	fromAcc.SetBalance(asset, new(big.Int).Sub(fromBalance, amt))
	toAcc.SetBalance(asset, new(big.Int).Add(toAcc.Balance(asset), amt))

	if err := m.putAccount(from, fromAcc); err != nil {
		return err
	}
	if err := m.putAccount(to, toAcc); err != nil {
		if restoreErr := m.putAccount(from, originalFrom); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("state: rollback %x: %w", from, restoreErr))
		}
		return err
	}
	return nil
}

// loadIndex and appendIndex maintain the denormalized per-account id lists.
// Bookkeeping only; the authoritative record always lives under its own key.
func (m *Manager) loadIndex(prefix string, owner [20]byte) ([][32]byte, error) {
	data, err := m.db.Get(storageKey(prefix, owner[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids [][32]byte
	if err := rlp.DecodeBytes(data, &ids); err != nil {
		return nil, fmt.Errorf("state: decode index %x: %w", owner, err)
	}
	return ids, nil
}

func (m *Manager) appendIndex(prefix string, owner [20]byte, id [32]byte) error {
	ids, err := m.loadIndex(prefix, owner)
	if err != nil {
		return err
	}
	for _, existing := range ids {
		if existing == id {
			return nil
		}
	}
	ids = append(ids, id)
	encoded, err := rlp.EncodeToBytes(ids)
	if err != nil {
		return err
	}
	return m.db.Put(storageKey(prefix, owner[:]), encoded)
}

// pageIndex applies offset/limit pagination to an id list. A zero limit means
// no cap.
func pageIndex(ids [][32]byte, offset, limit int) [][32]byte {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return nil
	}
	page := ids[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}
	return append([][32]byte(nil), page...)
}

func (m *Manager) loadUint64(key []byte) (uint64, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var value uint64
	if err := rlp.DecodeBytes(data, &value); err != nil {
		return 0, fmt.Errorf("state: decode counter: %w", err)
	}
	return value, nil
}

func (m *Manager) writeUint64(key []byte, value uint64) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}
