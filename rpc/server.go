package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crowdsale/core/bank"
	"crowdsale/crypto"
	nativecommon "crowdsale/native/common"
	"crowdsale/native/sale"
	"crowdsale/observability/metrics"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError         = -32700
	codeInvalidRequest     = -32600
	codeMethodNotFound     = -32601
	codeInvalidParams      = -32602
	codeUnauthorized       = -32001
	codeServerError        = -32000
	codeDuplicateReference = -32010
	codePaused             = -32030
)

// Server exposes the sale engine over JSON-RPC plus health and metrics
// endpoints.
type Server struct {
	engine    *sale.Engine
	vault     *bank.Vault
	feed      *sale.ManualFeed
	authToken string
	log       *slog.Logger
	metrics   *metrics.SaleMetrics
}

// NewServer wires the RPC surface. The manual feed may be nil when the native
// flow is disabled or priced by an external feed; the vault may be nil when no
// deposit endpoint should be offered.
func NewServer(engine *sale.Engine, vault *bank.Vault, feed *sale.ManualFeed, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    engine,
		vault:     vault,
		feed:      feed,
		authToken: strings.TrimSpace(authToken),
		log:       log,
		metrics:   metrics.Sale(),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on the supplied address and blocks.
func (s *Server) Start(addr string) error {
	s.log.Info("rpc listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body")
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required")
		return
	}

	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "missing or invalid bearer token")
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method))
		return
	}

	result, err := handler(req.Params)
	if err != nil {
		s.metrics.ObserveRejection(errKind(err))
		s.log.Warn("rpc call rejected", "method", req.Method, "err", err)
		status, code := errStatus(err)
		writeError(w, status, req.ID, code, err.Error())
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

// errStatus maps engine errors onto HTTP statuses and JSON-RPC codes.
func errStatus(err error) (int, int) {
	switch {
	case errors.Is(err, sale.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, codePaused
	case errors.Is(err, sale.ErrReferenceProcessed):
		return http.StatusConflict, codeDuplicateReference
	case errors.Is(err, sale.ErrInvalidAmount),
		errors.Is(err, sale.ErrInvalidAsset),
		errors.Is(err, sale.ErrInvalidReference),
		errors.Is(err, sale.ErrBatchLengthMismatch),
		errors.Is(err, sale.ErrContributionTooSmall),
		errors.Is(err, sale.ErrContributionLimit),
		errors.Is(err, sale.ErrAssetNotSupported),
		errors.Is(err, sale.ErrAssetActive),
		errors.Is(err, sale.ErrIdentityNotVerified),
		errors.Is(err, sale.ErrInvalidPriceFeed),
		errors.Is(err, sale.ErrInvalidPriceData),
		errors.Is(err, errBadParams):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

// errKind labels rejections for the metrics counter.
func errKind(err error) string {
	switch {
	case errors.Is(err, sale.ErrReferenceProcessed):
		return "duplicate_reference"
	case errors.Is(err, sale.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, sale.ErrContributionTooSmall):
		return "below_minimum"
	case errors.Is(err, sale.ErrContributionLimit):
		return "cap_exceeded"
	case errors.Is(err, sale.ErrIdentityNotVerified):
		return "identity"
	case errors.Is(err, sale.ErrInvalidPriceFeed), errors.Is(err, sale.ErrInvalidPriceData):
		return "oracle"
	case errors.Is(err, sale.ErrAssetNotSupported), errors.Is(err, sale.ErrAssetActive), errors.Is(err, sale.ErrInvalidAsset):
		return "asset"
	case errors.Is(err, sale.ErrInvalidAmount), errors.Is(err, sale.ErrInvalidReference), errors.Is(err, sale.ErrBatchLengthMismatch), errors.Is(err, errBadParams):
		return "invalid_params"
	default:
		return "internal"
	}
}

// refreshTotals pushes the latest aggregates into the gauges after a credited
// contribution.
func (s *Server) refreshTotals() {
	stats, err := s.engine.Stats()
	if err != nil {
		s.log.Warn("stats refresh failed", "err", err)
		return
	}
	s.metrics.SetTotals(stats.TotalUSDValue, stats.TotalSharesIssued, stats.UniqueContributors)
}

func parseAddr(encoded string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(encoded))
	if err != nil {
		return out, fmt.Errorf("%w: address %q: %v", errBadParams, encoded, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parseAmount(encoded string) (*big.Int, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount required", errBadParams)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not a base-10 integer", errBadParams, encoded)
	}
	return amount, nil
}

func encodeAddr(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.SalePrefix, addr[:]).String()
}
