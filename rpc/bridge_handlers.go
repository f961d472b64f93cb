package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"

	"crosslock/native/bridge"
)

type bridgeSendParams struct {
	Sender         string `json:"sender"`
	TargetChainRef string `json:"targetChainRef"`
	Target         string `json:"target"`
	Payload        string `json:"payload,omitempty"`
}

type bridgeMessageParams struct {
	SourceChainRef string `json:"sourceChainRef"`
	TargetChainRef string `json:"targetChainRef"`
	Sender         string `json:"sender"`
	Target         string `json:"target"`
	Payload        string `json:"payload,omitempty"`
	Nonce          uint64 `json:"nonce"`
	Timestamp      int64  `json:"timestamp"`
}

type bridgeExecuteParams struct {
	Message    bridgeMessageParams `json:"message"`
	Signatures []string            `json:"signatures"`
}

type bridgeValidatorParams struct {
	Caller string `json:"caller"`
	Addr   string `json:"addr"`
	Stake  string `json:"stake,omitempty"`
}

type bridgeCallerParams struct {
	Caller string `json:"caller"`
}

type bridgeDigestParams struct {
	Digest string `json:"digest"`
}

type bridgeMessageJSON struct {
	SourceChainRef string `json:"sourceChainRef"`
	TargetChainRef string `json:"targetChainRef"`
	Sender         string `json:"sender"`
	Target         string `json:"target"`
	Payload        string `json:"payload,omitempty"`
	Nonce          uint64 `json:"nonce"`
	Timestamp      int64  `json:"timestamp"`
	Digest         string `json:"digest,omitempty"`
}

type validatorJSON struct {
	Addr       string `json:"addr"`
	Stake      string `json:"stake"`
	Active     bool   `json:"active"`
	JoinedAt   int64  `json:"joinedAt"`
	LastSeen   int64  `json:"lastSeen"`
	SlashCount uint32 `json:"slashCount"`
}

type bridgeConfigJSON struct {
	RequiredSignatures uint32 `json:"requiredSignatures"`
	MessageTimeout     int64  `json:"messageTimeoutSeconds"`
	MinStake           string `json:"minStake"`
	SlashAmount        string `json:"slashAmount"`
	Paused             bool   `json:"paused"`
}

func (p bridgeMessageParams) toMessage() (*bridge.Message, error) {
	sender, err := parseAddress(p.Sender)
	if err != nil {
		return nil, err
	}
	payload, err := parseHexBytes(p.Payload)
	if err != nil {
		return nil, err
	}
	return &bridge.Message{
		SourceChainRef: p.SourceChainRef,
		TargetChainRef: p.TargetChainRef,
		Sender:         sender,
		Target:         p.Target,
		Payload:        payload,
		Nonce:          p.Nonce,
		Timestamp:      p.Timestamp,
	}, nil
}

func messageToJSON(m *bridge.Message) bridgeMessageJSON {
	out := bridgeMessageJSON{
		SourceChainRef: m.SourceChainRef,
		TargetChainRef: m.TargetChainRef,
		Sender:         formatAddress(m.Sender),
		Target:         m.Target,
		Nonce:          m.Nonce,
		Timestamp:      m.Timestamp,
	}
	if len(m.Payload) > 0 {
		out.Payload = hex.EncodeToString(m.Payload)
	}
	if digest, err := m.Digest(); err == nil {
		out.Digest = hex.EncodeToString(digest[:])
	}
	return out
}

func validatorToJSON(v *bridge.ValidatorInfo) validatorJSON {
	return validatorJSON{
		Addr:       formatAddress(v.Addr),
		Stake:      v.Stake.String(),
		Active:     v.Active,
		JoinedAt:   v.JoinedAt,
		LastSeen:   v.LastSeen,
		SlashCount: v.SlashCount,
	}
}

func (s *Server) handleBridgeSend(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeSendParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	payload, err := parseHexBytes(params.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	msg, err := s.relay.SendMessage(sender, params.TargetChainRef, params.Target, payload)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, messageToJSON(msg))
}

func (s *Server) handleBridgeExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeExecuteParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	msg, err := params.Message.toMessage()
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	signatures := make([][]byte, 0, len(params.Signatures))
	for _, raw := range params.Signatures {
		sig, err := parseHexBytes(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return
		}
		signatures = append(signatures, sig)
	}
	digest, err := s.relay.ExecuteMessage(msg, signatures)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"digest": hex.EncodeToString(digest[:])})
}

func (s *Server) handleBridgeRegisterValidator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeValidatorParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	stake, ok := new(big.Int).SetString(params.Stake, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "stake must be a decimal string")
		return
	}
	info, err := s.relay.RegisterValidator(caller, addr, stake)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, validatorToJSON(info))
}

func (s *Server) handleBridgeRemoveValidator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeValidatorParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.relay.RemoveValidator(caller, addr); err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"removed": true})
}

func (s *Server) handleBridgeSlashValidator(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeValidatorParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Addr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	info, err := s.relay.SlashValidator(caller, addr)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, validatorToJSON(info))
}

func (s *Server) handleBridgeHeartbeat(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeCallerParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.relay.Heartbeat(caller); err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleBridgePause(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeCallerParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.relay.Pause(caller); err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": true})
}

func (s *Server) handleBridgeUnpause(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeCallerParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.relay.Unpause(caller); err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": false})
}

func (s *Server) handleBridgeValidators(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	validators, err := s.relay.Validators()
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	out := make([]validatorJSON, 0, len(validators))
	for _, v := range validators {
		out = append(out, validatorToJSON(v))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleBridgeConfig(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	cfg, err := s.relay.ConfigSnapshot()
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, bridgeConfigJSON{
		RequiredSignatures: cfg.RequiredSignatures,
		MessageTimeout:     cfg.MessageTimeout,
		MinStake:           cfg.MinStake.String(),
		SlashAmount:        cfg.SlashAmount.String(),
		Paused:             cfg.Paused,
	})
}

func (s *Server) handleBridgeIsExecuted(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeDigestParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	digest, err := parseHash32(params.Digest)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]bool{"executed": s.relay.IsExecuted(digest)})
}

func (s *Server) handleBridgeComputeDigest(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params bridgeMessageParams
	if err := singleObjectParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sender, err := parseAddress(params.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	payload, err := parseHexBytes(params.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	digest, err := bridge.ComputeMessageDigest(params.SourceChainRef, params.TargetChainRef, sender,
		params.Target, payload, params.Nonce, params.Timestamp)
	if err != nil {
		writeEngineError(w, req, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"digest": hex.EncodeToString(digest[:])})
}
