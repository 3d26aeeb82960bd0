package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"nftescrow/core"
	coreerrors "nftescrow/core/errors"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/bank"
	"nftescrow/native/listing"
	"nftescrow/observability"
	"nftescrow/services/indexer"
)

func observeRPC(module, method string, status int, duration time.Duration) {
	observability.ModuleMetrics().Observe(module, method, status, duration)
}

func decodeParam(req *RPCRequest, out interface{}) *handlerError {
	if len(req.Params) != 1 {
		return invalidParams("expected a single params object", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("invalid params", err.Error())
	}
	return nil
}

func parseIdentity(field, value string) (crypto.Identity, *handlerError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Identity{}, invalidParams(field+" required", nil)
	}
	id, err := crypto.ParseIdentity(trimmed)
	if err != nil {
		return crypto.Identity{}, invalidParams("invalid "+field, err.Error())
	}
	return id, nil
}

func notFoundOr(err error, message string) *handlerError {
	if errors.Is(err, core.ErrAccountNotFound) || errors.Is(err, core.ErrReceiptNotFound) {
		return newError(http.StatusNotFound, codeNotFound, message, err.Error())
	}
	return newError(http.StatusInternalServerError, codeServerError, message, err.Error())
}

func (s *Server) handleSendTransaction(r *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	if authErr := s.requireAuth(r); authErr != nil {
		return nil, &handlerError{status: http.StatusUnauthorized, err: authErr}
	}
	var tx types.Transaction
	if herr := decodeParam(req, &tx); herr != nil {
		return nil, herr
	}
	receipt, err := s.ledger.SubmitTransaction(r.Context(), &tx)
	if err != nil {
		return nil, transactionError(err)
	}
	return receipt, nil
}

func transactionError(err error) *handlerError {
	if code, ok := listing.CodeOf(err); ok {
		return newError(http.StatusUnprocessableEntity, codeListingError, "listing program error", ListingErrorData{
			Code:   uint32(code),
			Name:   listing.NameOf(err),
			Detail: err.Error(),
		})
	}
	switch {
	case errors.Is(err, coreerrors.ErrDuplicateTransaction):
		return newError(http.StatusConflict, codeDuplicateTx, "transaction already applied", err.Error())
	case errors.Is(err, coreerrors.ErrProgramPaused):
		return newError(http.StatusServiceUnavailable, codeUnavailable, "program paused", err.Error())
	}
	return newError(http.StatusBadRequest, codeTxRejected, "transaction rejected", err.Error())
}

type listingParams struct {
	Address string `json:"address,omitempty"`
	Seller  string `json:"seller,omitempty"`
	Asset   string `json:"asset,omitempty"`
}

func (s *Server) handleGetListing(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params listingParams
	if herr := decodeParam(req, &params); herr != nil {
		return nil, herr
	}
	var addr crypto.Identity
	if strings.TrimSpace(params.Address) != "" {
		parsed, herr := parseIdentity("address", params.Address)
		if herr != nil {
			return nil, herr
		}
		addr = parsed
	} else {
		seller, herr := parseIdentity("seller", params.Seller)
		if herr != nil {
			return nil, herr
		}
		asset, herr := parseIdentity("asset", params.Asset)
		if herr != nil {
			return nil, herr
		}
		resolved, err := listing.ResolveAddresses(seller, asset)
		if err != nil {
			return nil, invalidParams("derive listing address", err.Error())
		}
		addr = resolved.Listing
	}
	record, err := s.ledger.Listing(addr)
	if err != nil {
		return nil, notFoundOr(err, "listing not found")
	}
	result := ListingResult{
		Address: addr.String(),
		Active:  record.Active,
		Seller:  record.Seller.String(),
		Asset:   record.Asset.String(),
		Price:   record.Price,
		Nonce:   record.Nonce,
	}
	if record.Active {
		resolved, err := listing.ResolveAddresses(record.Seller, record.Asset)
		if err == nil {
			result.Escrow = resolved.Escrow.String()
		}
	}
	return result, nil
}

type deriveParams struct {
	Seller string `json:"seller"`
	Asset  string `json:"asset"`
}

func (s *Server) handleDeriveAddress(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params deriveParams
	if herr := decodeParam(req, &params); herr != nil {
		return nil, herr
	}
	seller, herr := parseIdentity("seller", params.Seller)
	if herr != nil {
		return nil, herr
	}
	asset, herr := parseIdentity("asset", params.Asset)
	if herr != nil {
		return nil, herr
	}
	resolved, err := listing.ResolveAddresses(seller, asset)
	if err != nil {
		return nil, newError(http.StatusUnprocessableEntity, codeListingError, "derive listing address", ListingErrorData{
			Code:   uint32(listing.CodeDerivation),
			Name:   "Derivation",
			Detail: err.Error(),
		})
	}
	return DerivedAddressesResult{
		Listing:       resolved.Listing.String(),
		Nonce:         resolved.Nonce,
		Escrow:        resolved.Escrow.String(),
		SellerHolding: resolved.SellerHolding.String(),
	}, nil
}

type historyParams struct {
	Seller string `json:"seller,omitempty"`
	Asset  string `json:"asset,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) handleHistory(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	if s.history == nil {
		return nil, newError(http.StatusServiceUnavailable, codeUnavailable, "listing history is not indexed", nil)
	}
	var params historyParams
	if len(req.Params) > 0 {
		if herr := decodeParam(req, &params); herr != nil {
			return nil, herr
		}
	}
	filter := indexer.Filter{Limit: params.Limit}
	if params.Seller != "" {
		seller, herr := parseIdentity("seller", params.Seller)
		if herr != nil {
			return nil, herr
		}
		filter.Seller = seller.String()
	}
	if params.Asset != "" {
		asset, herr := parseIdentity("asset", params.Asset)
		if herr != nil {
			return nil, herr
		}
		filter.Asset = asset.String()
	}
	switch status := indexer.Status(strings.ToLower(strings.TrimSpace(params.Status))); status {
	case "":
	case indexer.StatusOpen, indexer.StatusSold, indexer.StatusCancelled:
		filter.Status = status
	default:
		return nil, invalidParams("unknown status", params.Status)
	}
	records, err := s.history.History(filter)
	if err != nil {
		return nil, newError(http.StatusInternalServerError, codeServerError, "query history", err.Error())
	}
	out := make([]HistoryRecord, 0, len(records))
	for _, rec := range records {
		item := HistoryRecord{
			ID:        rec.ID.String(),
			Listing:   rec.Listing,
			Seller:    rec.Seller,
			Asset:     rec.Asset,
			Price:     rec.Price,
			Buyer:     rec.Buyer,
			Status:    string(rec.Status),
			CreatedAt: rec.CreatedAt.Unix(),
		}
		if rec.ClosedAt != nil {
			closed := rec.ClosedAt.Unix()
			item.ClosedAt = &closed
		}
		out = append(out, item)
	}
	return out, nil
}

type accountParams struct {
	Address string `json:"address"`
}

func (s *Server) handleGetAccount(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params accountParams
	if herr := decodeParam(req, &params); herr != nil {
		return nil, herr
	}
	addr, herr := parseIdentity("address", params.Address)
	if herr != nil {
		return nil, herr
	}
	acc, err := s.ledger.Account(addr)
	if err != nil {
		return nil, notFoundOr(err, "account not found")
	}
	return AccountResult{
		Address:  addr.String(),
		Lamports: acc.Lamports,
		Owner:    acc.Owner.String(),
		Data:     acc.Data,
	}, nil
}

type holdingParams struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

func (s *Server) handleGetHolding(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params holdingParams
	if herr := decodeParam(req, &params); herr != nil {
		return nil, herr
	}
	owner, herr := parseIdentity("owner", params.Owner)
	if herr != nil {
		return nil, herr
	}
	asset, herr := parseIdentity("asset", params.Asset)
	if herr != nil {
		return nil, herr
	}
	addr, holding, err := s.ledger.Holding(owner, asset)
	if err != nil {
		return nil, notFoundOr(err, "holding not found")
	}
	return HoldingResult{
		Address: addr.String(),
		Asset:   holding.Asset.String(),
		Owner:   holding.Owner.String(),
		Amount:  holding.Amount,
	}, nil
}

type receiptParams struct {
	Hash string `json:"hash"`
}

func (s *Server) handleGetReceipt(_ *http.Request, req *RPCRequest) (interface{}, *handlerError) {
	var params receiptParams
	if herr := decodeParam(req, &params); herr != nil {
		return nil, herr
	}
	hash, err := bank.ParseTxHash(params.Hash)
	if err != nil {
		return nil, invalidParams("invalid hash", err.Error())
	}
	receipt, err := s.ledger.Receipt(hash)
	if err != nil {
		return nil, notFoundOr(err, "receipt not found")
	}
	return receipt, nil
}

func (s *Server) handleHead(_ *http.Request, _ *RPCRequest) (interface{}, *handlerError) {
	head := s.ledger.Head()
	return HeadResult{Height: head.Height, Root: head.Root.Hex()}, nil
}
