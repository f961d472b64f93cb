package rpc

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"crosslock/core/state"
	"crosslock/crypto"
	"crosslock/native/bridge"
	"crosslock/native/htlc"
	"crosslock/native/orderbook"
	"crosslock/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeNotFound       = -32040
	codeConflict       = -32041
	codeForbidden      = -32042
)

// Server exposes the three engines over JSON-RPC 2.0. Mutating methods
// require a bearer token; every request carries a correlation id in logs and
// response headers.
type Server struct {
	ledger  *htlc.Engine
	matcher *orderbook.Engine
	relay   *bridge.Engine
	state   *state.Manager
	logger  *slog.Logger

	authToken string
	limit     rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Options configures a Server.
type Options struct {
	Ledger    *htlc.Engine
	Matcher   *orderbook.Engine
	Relay     *bridge.Engine
	State     *state.Manager
	Logger    *slog.Logger
	AuthToken string
	// RateLimitPerSecond and RateLimitBurst throttle per source address.
	// Zero disables the limiter.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewServer constructs the RPC surface.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ledger:    opts.Ledger,
		matcher:   opts.Matcher,
		relay:     opts.Relay,
		state:     opts.State,
		logger:    logger,
		authToken: strings.TrimSpace(opts.AuthToken),
		limit:     rate.Limit(opts.RateLimitPerSecond),
		burst:     opts.RateLimitBurst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("json-rpc listening", "addr", addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle routes a single JSON-RPC call.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	correlationID := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", correlationID)

	if !s.allowSource(sourceAddr(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	s.logger.Debug("rpc request", "method", req.Method, "requestId", correlationID,
		logging.MaskField("source", sourceAddr(r)))

	switch req.Method {
	// HTLC ledger.
	case "htlc_lock":
		s.authorized(w, r, req, s.handleHTLCLock)
	case "htlc_lockBatch":
		s.authorized(w, r, req, s.handleHTLCLockBatch)
	case "htlc_withdraw":
		s.authorized(w, r, req, s.handleHTLCWithdraw)
	case "htlc_refund":
		s.authorized(w, r, req, s.handleHTLCRefund)
	case "htlc_get":
		s.handleHTLCGet(w, r, req)
	case "htlc_list":
		s.handleHTLCList(w, r, req)
	case "htlc_computeId":
		s.handleHTLCComputeID(w, r, req)

	// Order matcher.
	case "order_create":
		s.authorized(w, r, req, s.handleOrderCreate)
	case "order_take":
		s.authorized(w, r, req, s.handleOrderTake)
	case "order_complete":
		s.authorized(w, r, req, s.handleOrderComplete)
	case "order_cancel":
		s.authorized(w, r, req, s.handleOrderCancel)
	case "order_expire":
		s.authorized(w, r, req, s.handleOrderExpire)
	case "order_dispute":
		s.authorized(w, r, req, s.handleOrderDispute)
	case "order_registerResolver":
		s.authorized(w, r, req, s.handleOrderRegisterResolver)
	case "order_get":
		s.handleOrderGet(w, r, req)
	case "order_list":
		s.handleOrderList(w, r, req)
	case "order_resolver":
		s.handleOrderResolver(w, r, req)
	case "order_quote":
		s.handleOrderQuote(w, r, req)
	case "order_computeId":
		s.handleOrderComputeID(w, r, req)

	// Bridge.
	case "bridge_send":
		s.authorized(w, r, req, s.handleBridgeSend)
	case "bridge_execute":
		s.authorized(w, r, req, s.handleBridgeExecute)
	case "bridge_registerValidator":
		s.authorized(w, r, req, s.handleBridgeRegisterValidator)
	case "bridge_removeValidator":
		s.authorized(w, r, req, s.handleBridgeRemoveValidator)
	case "bridge_slashValidator":
		s.authorized(w, r, req, s.handleBridgeSlashValidator)
	case "bridge_heartbeat":
		s.authorized(w, r, req, s.handleBridgeHeartbeat)
	case "bridge_pause":
		s.authorized(w, r, req, s.handleBridgePause)
	case "bridge_unpause":
		s.authorized(w, r, req, s.handleBridgeUnpause)
	case "bridge_validators":
		s.handleBridgeValidators(w, r, req)
	case "bridge_config":
		s.handleBridgeConfig(w, r, req)
	case "bridge_isExecuted":
		s.handleBridgeIsExecuted(w, r, req)
	case "bridge_computeDigest":
		s.handleBridgeComputeDigest(w, r, req)

	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

type handlerFunc func(http.ResponseWriter, *http.Request, *RPCRequest)

func (s *Server) authorized(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) allowSource(source string) bool {
	if s.limit <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(s.limit, s.burst)
		s.limiters[source] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// singleObjectParams unmarshals the single parameter object every method
// expects.
func singleObjectParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.CLKPrefix, append([]byte(nil), addr[:]...)).String()
}

func parseHash32(raw string) ([32]byte, error) {
	var out [32]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, fmt.Errorf("invalid hex value: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseHexBytes(raw string) ([]byte, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if cleaned == "" {
		return nil, nil
	}
	return hex.DecodeString(cleaned)
}

// errorStatus maps engine errors onto HTTP statuses and RPC codes.
func errorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, htlc.ErrNotFound), errors.Is(err, orderbook.ErrNotFound), errors.Is(err, bridge.ErrValidatorUnknown):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, htlc.ErrUnauthorized), errors.Is(err, orderbook.ErrUnauthorized), errors.Is(err, bridge.ErrUnauthorized):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, htlc.ErrAlreadyExists), errors.Is(err, orderbook.ErrAlreadyExists),
		errors.Is(err, htlc.ErrInvalidState), errors.Is(err, orderbook.ErrInvalidState),
		errors.Is(err, bridge.ErrAlreadyExecuted), errors.Is(err, bridge.ErrValidatorExists):
		return http.StatusConflict, codeConflict
	default:
		return http.StatusBadRequest, codeServerError
	}
}

func writeEngineError(w http.ResponseWriter, req *RPCRequest, err error) {
	status, code := errorStatus(err)
	writeError(w, status, req.ID, code, err.Error(), nil)
}
