package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"crosslock/native/hashlock"
	"crosslock/native/htlc"
)

type htlcLockParams struct {
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
	Commitment      string `json:"commitment"`
	Deadline        int64  `json:"deadline"`
	CounterpartyRef string `json:"counterpartyRef,omitempty"`
}

type htlcIDParams struct {
	ID string `json:"id"`
}

type htlcWithdrawParams struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Caller string `json:"caller"`
}

type htlcRefundParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type htlcListParams struct {
	Owner  string `json:"owner"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type htlcBatchParams struct {
	Items []htlcLockParams `json:"items"`
}

type htlcJSON struct {
	ID              string `json:"id"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
	GrossAmount     string `json:"grossAmount"`
	Fee             string `json:"fee"`
	Commitment      string `json:"commitment"`
	Deadline        int64  `json:"deadline"`
	CreatedAt       int64  `json:"createdAt"`
	OriginChainRef  string `json:"originChainRef,omitempty"`
	CounterpartyRef string `json:"counterpartyRef,omitempty"`
	Secret          string `json:"secret,omitempty"`
	Status          string `json:"status"`
}

func htlcToJSON(r *htlc.Record) htlcJSON {
	out := htlcJSON{
		ID:             hex.EncodeToString(r.ID[:]),
		Sender:         formatAddress(r.Sender),
		Recipient:      formatAddress(r.Recipient),
		Asset:          r.Asset,
		Amount:         r.Amount.String(),
		GrossAmount:    r.GrossAmount.String(),
		Fee:            r.Fee.String(),
		Commitment:     hex.EncodeToString(r.Commitment[:]),
		Deadline:       r.Deadline,
		CreatedAt:      r.CreatedAt,
		OriginChainRef: r.OriginChainRef,
		Status:         r.Status.String(),
	}
	if r.CounterpartyRef != ([32]byte{}) {
		out.CounterpartyRef = hex.EncodeToString(r.CounterpartyRef[:])
	}
	if len(r.Secret) > 0 {
		out.Secret = hex.EncodeToString(r.Secret)
	}
	return out
}

func (p htlcLockParams) toInput() (htlc.LockInput, error) {
	var in htlc.LockInput
	sender, err := parseAddress(p.Sender)
	if err != nil {
		return in, err
	}
	recipient, err := parseAddress(p.Recipient)
	if err != nil {
		return in, err
	}
	commitment, err := parseHash32(p.Commitment)
	if err != nil {
		return in, err
	}
	amount, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return in, htlc.ErrInvalidAmount
	}
	in = htlc.LockInput{
		Sender:     sender,
		Recipient:  recipient,
		Asset:      p.Asset,
		Amount:     amount,
		Commitment: hashlock.Commitment(commitment),
		Deadline:   p.Deadline,
	}
	if p.CounterpartyRef != "" {
		ref, err := parseHash32(p.CounterpartyRef)
		if err != nil {
			return in, err
		}
		in.CounterpartyRef = ref
	}
	return in, nil
}

func (s *Server) handleHTLCLock(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcLockParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	in, err := params.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.ledger.Lock(in)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, htlcToJSON(record))
}

func (s *Server) handleHTLCLockBatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcBatchParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	items := make([]htlc.LockInput, 0, len(params.Items))
	for _, item := range params.Items {
		in, err := item.toInput()
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		items = append(items, in)
	}
	records, err := s.ledger.LockBatch(items)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	out := make([]htlcJSON, 0, len(records))
	for _, record := range records {
		out = append(out, htlcToJSON(record))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleHTLCWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcWithdrawParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	secret, err := parseHexBytes(params.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.ledger.Withdraw(id, secret, caller)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, htlcToJSON(record))
}

func (s *Server) handleHTLCRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcRefundParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.ledger.Refund(id, caller)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, htlcToJSON(record))
}

func (s *Server) handleHTLCGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcIDParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	record, err := s.ledger.Get(id)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, htlcToJSON(record))
}

func (s *Server) handleHTLCList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcListParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	records, err := s.state.HTLCListByOwner(owner, params.Offset, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	out := make([]htlcJSON, 0, len(records))
	for _, record := range records {
		out = append(out, htlcToJSON(record))
	}
	writeResult(w, req.ID, out)
}

// handleHTLCComputeID exposes the pure id derivation so counterparties can
// pre-compute an id before the lock exists.
func (s *Server) handleHTLCComputeID(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params htlcLockParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	in, err := params.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id := htlc.ComputeID(in.Sender, in.Recipient, in.Asset, in.Amount, in.Commitment, in.Deadline)
	writeResult(w, req.ID, map[string]string{"id": hex.EncodeToString(id[:])})
}
