package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"crosslock/native/hashlock"
	"crosslock/native/htlc"
)

type storedHTLC struct {
	ID              [32]byte
	Sender          [20]byte
	Recipient       [20]byte
	Asset           string
	Amount          *big.Int
	GrossAmount     *big.Int
	Fee             *big.Int
	Commitment      [32]byte
	Deadline        *big.Int
	CreatedAt       *big.Int
	OriginChainRef  string
	CounterpartyRef [32]byte
	Secret          []byte
	Status          uint8
}

func newStoredHTLC(r *htlc.Record) *storedHTLC {
	stored := &storedHTLC{
		ID:              r.ID,
		Sender:          r.Sender,
		Recipient:       r.Recipient,
		Asset:           r.Asset,
		Amount:          big.NewInt(0),
		GrossAmount:     big.NewInt(0),
		Fee:             big.NewInt(0),
		Commitment:      [32]byte(r.Commitment),
		Deadline:        big.NewInt(r.Deadline),
		CreatedAt:       big.NewInt(r.CreatedAt),
		OriginChainRef:  r.OriginChainRef,
		CounterpartyRef: r.CounterpartyRef,
		Status:          uint8(r.Status),
	}
	if r.Amount != nil {
		stored.Amount = new(big.Int).Set(r.Amount)
	}
	if r.GrossAmount != nil {
		stored.GrossAmount = new(big.Int).Set(r.GrossAmount)
	}
	if r.Fee != nil {
		stored.Fee = new(big.Int).Set(r.Fee)
	}
	if len(r.Secret) > 0 {
		stored.Secret = append([]byte(nil), r.Secret...)
	}
	return stored
}

func (s *storedHTLC) toRecord() (*htlc.Record, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil htlc storage record")
	}
	record := &htlc.Record{
		ID:              s.ID,
		Sender:          s.Sender,
		Recipient:       s.Recipient,
		Asset:           s.Asset,
		Amount:          big.NewInt(0),
		GrossAmount:     big.NewInt(0),
		Fee:             big.NewInt(0),
		Commitment:      hashlock.Commitment(s.Commitment),
		OriginChainRef:  s.OriginChainRef,
		CounterpartyRef: s.CounterpartyRef,
		Status:          htlc.Status(s.Status),
	}
	if s.Amount != nil {
		record.Amount = new(big.Int).Set(s.Amount)
	}
	if s.GrossAmount != nil {
		record.GrossAmount = new(big.Int).Set(s.GrossAmount)
	}
	if s.Fee != nil {
		record.Fee = new(big.Int).Set(s.Fee)
	}
	if s.Deadline != nil {
		record.Deadline = s.Deadline.Int64()
	}
	if s.CreatedAt != nil {
		record.CreatedAt = s.CreatedAt.Int64()
	}
	if len(s.Secret) > 0 {
		record.Secret = append([]byte(nil), s.Secret...)
	}
	if !record.Status.Valid() {
		return nil, htlc.ErrInvalidState
	}
	return record, nil
}

// HTLCPut persists a ledger record.
func (m *Manager) HTLCPut(r *htlc.Record) error {
	sanitized, err := htlc.SanitizeRecord(r)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(newStoredHTLC(sanitized))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(storageKey(htlcRecordPrefix, sanitized.ID[:]), encoded)
}

// HTLCGet loads a ledger record by id.
func (m *Manager) HTLCGet(id [32]byte) (*htlc.Record, bool) {
	m.mu.Lock()
	data, err := m.db.Get(storageKey(htlcRecordPrefix, id[:]))
	m.mu.Unlock()
	if err != nil || len(data) == 0 {
		return nil, false
	}
	stored := new(storedHTLC)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	record, err := stored.toRecord()
	if err != nil {
		return nil, false
	}
	return record, true
}

// HTLCIndexAppend adds an id to an account's enumeration index.
func (m *Manager) HTLCIndexAppend(owner [20]byte, id [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendIndex(htlcIndexPrefix, owner, id)
}

// HTLCListByOwner returns a page of the records indexed under an account, in
// insertion order. Records whose stored form fails to decode are skipped.
func (m *Manager) HTLCListByOwner(owner [20]byte, offset, limit int) ([]*htlc.Record, error) {
	m.mu.Lock()
	ids, err := m.loadIndex(htlcIndexPrefix, owner)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	page := pageIndex(ids, offset, limit)
	records := make([]*htlc.Record, 0, len(page))
	for _, id := range page {
		record, ok := m.HTLCGet(id)
		if !ok {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// HTLCHas reports whether a record exists without decoding it.
func (m *Manager) HTLCHas(id [32]byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Has(storageKey(htlcRecordPrefix, id[:]))
}
