package rpc

import (
	"encoding/json"
	"net/http"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
	codeTxRejected     = -32040
	codeListingError   = -32050
	codeUnavailable    = -32060
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// ListingErrorData is attached to failures raised by the listing program so
// clients can branch on the stable code instead of the message.
type ListingErrorData struct {
	Code   uint32 `json:"code"`
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

// handlerError carries the HTTP status alongside the JSON-RPC error.
type handlerError struct {
	status int
	err    *RPCError
}

func newError(status, code int, message string, data interface{}) *handlerError {
	return &handlerError{status: status, err: &RPCError{Code: code, Message: message, Data: data}}
}

func invalidParams(message string, data interface{}) *handlerError {
	return newError(http.StatusBadRequest, codeInvalidParams, message, data)
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data interface{}) {
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

func writeResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// AccountResult is the wire form of an account.
type AccountResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Owner    string `json:"owner"`
	Data     []byte `json:"data"`
}

// ListingResult is the wire form of an open listing.
type ListingResult struct {
	Address string `json:"address"`
	Active  bool   `json:"active"`
	Seller  string `json:"seller"`
	Asset   string `json:"asset"`
	Price   uint64 `json:"price"`
	Nonce   uint8  `json:"nonce"`
	Escrow  string `json:"escrow"`
}

// DerivedAddressesResult lists every address of a seller/asset listing.
type DerivedAddressesResult struct {
	Listing       string `json:"listing"`
	Nonce         uint8  `json:"nonce"`
	Escrow        string `json:"escrow"`
	SellerHolding string `json:"sellerHolding"`
}

// HoldingResult is the wire form of a token holding.
type HoldingResult struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

// HistoryRecord is the wire form of an indexed listing lifetime.
type HistoryRecord struct {
	ID        string `json:"id"`
	Listing   string `json:"listing"`
	Seller    string `json:"seller"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Buyer     string `json:"buyer,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
	ClosedAt  *int64 `json:"closedAt,omitempty"`
}

// HeadResult reports the committed ledger position.
type HeadResult struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}
