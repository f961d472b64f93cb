package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"crosslock/native/hashlock"
	"crosslock/native/orderbook"
)

type orderCreateParams struct {
	Maker       string `json:"maker"`
	SrcAsset    string `json:"srcAsset"`
	DstAsset    string `json:"dstAsset"`
	SrcAmount   string `json:"srcAmount"`
	DstAmount   string `json:"dstAmount"`
	DstChainRef string `json:"dstChainRef"`
	Commitment  string `json:"commitment"`
	Deadline    int64  `json:"deadline"`
	Taker       string `json:"taker,omitempty"`
}

type orderIDParams struct {
	ID string `json:"id"`
}

type orderTakeParams struct {
	ID             string `json:"id"`
	Caller         string `json:"caller"`
	DeclaredFeeBps uint32 `json:"declaredFeeBps"`
}

type orderCompleteParams struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Caller string `json:"caller"`
}

type orderCancelParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type orderListParams struct {
	Maker  string `json:"maker"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type resolverRegisterParams struct {
	Caller    string   `json:"caller"`
	Chains    []string `json:"chains"`
	MinFeeBps uint32   `json:"minFeeBps"`
}

type resolverQueryParams struct {
	Addr string `json:"addr"`
}

type orderQuoteParams struct {
	DstChainRef string `json:"dstChainRef"`
	Amount      string `json:"amount,omitempty"`
}

type orderQuoteJSON struct {
	SrcChainRef       string `json:"srcChainRef"`
	DstChainRef       string `json:"dstChainRef"`
	SuggestedFeeBps   uint32 `json:"suggestedFeeBps"`
	SourceWindow      int64  `json:"sourceWindowSeconds"`
	DestinationWindow int64  `json:"destinationWindowSeconds"`
}

type orderComputeIDParams struct {
	Maker       string `json:"maker"`
	SrcAsset    string `json:"srcAsset"`
	DstAsset    string `json:"dstAsset"`
	SrcAmount   string `json:"srcAmount"`
	DstAmount   string `json:"dstAmount"`
	SrcChainRef string `json:"srcChainRef"`
	DstChainRef string `json:"dstChainRef"`
	Commitment  string `json:"commitment"`
	Deadline    int64  `json:"deadline"`
	Nonce       uint64 `json:"nonce"`
}

type orderJSON struct {
	ID          string `json:"id"`
	Maker       string `json:"maker"`
	Taker       string `json:"taker,omitempty"`
	SrcAsset    string `json:"srcAsset"`
	DstAsset    string `json:"dstAsset"`
	SrcAmount   string `json:"srcAmount"`
	DstAmount   string `json:"dstAmount"`
	SrcChainRef string `json:"srcChainRef"`
	DstChainRef string `json:"dstChainRef"`
	Commitment  string `json:"commitment"`
	Deadline    int64  `json:"deadline"`
	Nonce       uint64 `json:"nonce"`
	HTLCRef     string `json:"htlcRef,omitempty"`
	Resolver    string `json:"resolver,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	MatchedAt   int64  `json:"matchedAt,omitempty"`
	Status      string `json:"status"`
}

type resolverJSON struct {
	Addr      string   `json:"addr"`
	Chains    []string `json:"chains"`
	MinFeeBps uint32   `json:"minFeeBps"`
	Active    bool     `json:"active"`
	AddedAt   int64    `json:"addedAt"`
}

func orderToJSON(o *orderbook.Order) orderJSON {
	out := orderJSON{
		ID:          hex.EncodeToString(o.ID[:]),
		Maker:       formatAddress(o.Maker),
		SrcAsset:    o.SrcAsset,
		DstAsset:    o.DstAsset,
		SrcAmount:   o.SrcAmount.String(),
		DstAmount:   o.DstAmount.String(),
		SrcChainRef: o.SrcChainRef,
		DstChainRef: o.DstChainRef,
		Commitment:  hex.EncodeToString(o.Commitment[:]),
		Deadline:    o.Deadline,
		Nonce:       o.Nonce,
		CreatedAt:   o.CreatedAt,
		MatchedAt:   o.MatchedAt,
		Status:      o.Status.String(),
	}
	if o.Taker != ([20]byte{}) {
		out.Taker = formatAddress(o.Taker)
	}
	if o.Resolver != ([20]byte{}) {
		out.Resolver = formatAddress(o.Resolver)
	}
	if o.HTLCRef != ([32]byte{}) {
		out.HTLCRef = hex.EncodeToString(o.HTLCRef[:])
	}
	return out
}

func resolverToJSON(r *orderbook.Resolver) resolverJSON {
	return resolverJSON{
		Addr:      formatAddress(r.Addr),
		Chains:    append([]string(nil), r.Chains...),
		MinFeeBps: r.MinFeeBps,
		Active:    r.Active,
		AddedAt:   r.AddedAt,
	}
}

func (s *Server) handleOrderCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderCreateParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	maker, err := parseAddress(params.Maker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	commitment, err := parseHash32(params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	srcAmount, ok := new(big.Int).SetString(params.SrcAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "srcAmount must be a decimal string")
		return
	}
	dstAmount, ok := new(big.Int).SetString(params.DstAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "dstAmount must be a decimal string")
		return
	}
	in := orderbook.CreateOrderInput{
		Maker:       maker,
		SrcAsset:    params.SrcAsset,
		DstAsset:    params.DstAsset,
		SrcAmount:   srcAmount,
		DstAmount:   dstAmount,
		DstChainRef: params.DstChainRef,
		Commitment:  hashlock.Commitment(commitment),
		Deadline:    params.Deadline,
	}
	if params.Taker != "" {
		taker, err := parseAddress(params.Taker)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		in.Taker = taker
	}
	order, err := s.matcher.CreateOrder(in)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderTake(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderTakeParams
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
	order, err := s.matcher.TakeOrder(id, caller, params.DeclaredFeeBps)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderComplete(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderCompleteParams
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
	order, err := s.matcher.CompleteOrder(id, secret, caller)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderCancelParams
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
	order, err := s.matcher.CancelOrder(id, caller)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderExpire(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderIDParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.matcher.ExpireOrder(id)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderDispute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderIDParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.matcher.FlagDisputed(id)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderRegisterResolver(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params resolverRegisterParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	resolver, err := s.matcher.RegisterResolver(caller, params.Chains, params.MinFeeBps)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, resolverToJSON(resolver))
}

func (s *Server) handleOrderGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderIDParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseHash32(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	order, err := s.matcher.Get(id)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderToJSON(order))
}

func (s *Server) handleOrderList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderListParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	maker, err := parseAddress(params.Maker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	orders, err := s.state.OrderListByMaker(maker, params.Offset, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return
	}
	out := make([]orderJSON, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderToJSON(order))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleOrderResolver(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params resolverQueryParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	resolver, err := s.matcher.ResolverInfo(addr)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, resolverToJSON(resolver))
}

func (s *Server) handleOrderQuote(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderQuoteParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	var amount *big.Int
	if params.Amount != "" {
		parsed, ok := new(big.Int).SetString(params.Amount, 10)
		if !ok {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "amount must be a decimal string")
			return
		}
		amount = parsed
	}
	quote, err := s.matcher.Quote(params.DstChainRef, amount)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, orderQuoteJSON{
		SrcChainRef:       quote.SrcChainRef,
		DstChainRef:       quote.DstChainRef,
		SuggestedFeeBps:   quote.SuggestedFeeBps,
		SourceWindow:      quote.SourceWindow,
		DestinationWindow: quote.DestinationWindow,
	})
}

func (s *Server) handleOrderComputeID(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params orderComputeIDParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	maker, err := parseAddress(params.Maker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	commitment, err := parseHash32(params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	srcAmount, ok := new(big.Int).SetString(params.SrcAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "srcAmount must be a decimal string")
		return
	}
	dstAmount, ok := new(big.Int).SetString(params.DstAmount, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "dstAmount must be a decimal string")
		return
	}
	id := orderbook.ComputeOrderID(maker, params.SrcAsset, params.DstAsset, srcAmount, dstAmount,
		params.SrcChainRef, params.DstChainRef, hashlock.Commitment(commitment), params.Deadline, params.Nonce)
	writeResult(w, req.ID, map[string]string{"id": hex.EncodeToString(id[:])})
}
