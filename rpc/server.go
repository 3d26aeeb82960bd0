package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftescrow/core"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/listing"
	"nftescrow/native/token"
	"nftescrow/services/indexer"
)

const (
	defaultMaxBodyBytes      = 1 << 20
	defaultReadHeaderTimeout = 5 * time.Second
	defaultWriteTimeout      = 15 * time.Second
)

// Ledger is the node surface served over JSON-RPC.
type Ledger interface {
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Account(id crypto.Identity) (*types.Account, error)
	Listing(address crypto.Identity) (*listing.Listing, error)
	Holding(owner, asset crypto.Identity) (crypto.Identity, *token.Holding, error)
	Receipt(hash [32]byte) (*types.Receipt, error)
	Head() core.Head
}

// History answers listing history queries. The server works without one;
// history calls then report the indexer as unavailable.
type History interface {
	History(filter indexer.Filter) ([]indexer.ListingRecord, error)
}

// ServerConfig controls transport behaviour of the RPC server.
type ServerConfig struct {
	TrustedProxies    []string
	JWT               JWTConfig
	RateLimitPerSec   float64
	RateLimitBurst    int
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	StreamOrigins     []string
}

// Server exposes a Ledger over HTTP JSON-RPC.
type Server struct {
	ledger         Ledger
	history        History
	cfg            ServerConfig
	limiter        *rateLimiter
	trustedProxies map[string]struct{}
	logger         *slog.Logger
	hub            *EventHub
	httpServer     *http.Server
}

// NewServer builds a server for ledger. history may be nil.
func NewServer(ledger Ledger, history History, cfg ServerConfig) (*Server, error) {
	if ledger == nil {
		return nil, errors.New("rpc: ledger required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	trusted := make(map[string]struct{}, len(cfg.TrustedProxies))
	for _, entry := range cfg.TrustedProxies {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		ip := net.ParseIP(trimmed)
		if ip == nil {
			return nil, fmt.Errorf("rpc: invalid trusted proxy %q", entry)
		}
		trusted[ip.String()] = struct{}{}
	}
	return &Server{
		ledger:         ledger,
		history:        history,
		cfg:            cfg,
		limiter:        newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		trustedProxies: trusted,
		logger:         slog.Default(),
		hub:            NewEventHub(),
	}, nil
}

// SetLogger replaces the server logger.
func (s *Server) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(logRequests(s.logger))
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.rateLimit).Get("/ws/listings", s.handleListingStream)
	r.With(s.rateLimit).Post("/", s.handle)
	return otelhttp.NewHandler(r, "listing-rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.logger.Info("rpc server listening", "address", listener.Addr().String())
	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	head := s.ledger.Head()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"height": head.Height,
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", err.Error())
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", s.cfg.MaxBodyBytes)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	start := time.Now()
	result, herr := handler(r, &req)
	status := http.StatusOK
	if herr != nil {
		status = herr.status
	}
	module, method := splitMethod(req.Method)
	observeRPC(module, method, status, time.Since(start))
	if herr != nil {
		writeError(w, herr.status, req.ID, herr.err.Code, herr.err.Message, herr.err.Data)
		return
	}
	writeResult(w, req.ID, result)
}

type methodHandler func(r *http.Request, req *RPCRequest) (interface{}, *handlerError)

func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		"listing_sendTransaction": s.handleSendTransaction,
		"listing_getListing":      s.handleGetListing,
		"listing_deriveAddress":   s.handleDeriveAddress,
		"listing_history":         s.handleHistory,
		"account_get":             s.handleGetAccount,
		"token_getHolding":        s.handleGetHolding,
		"ledger_getReceipt":       s.handleGetReceipt,
		"ledger_head":             s.handleHead,
	}
}

func splitMethod(name string) (string, string) {
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return "rpc", name
}
