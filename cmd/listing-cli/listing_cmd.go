package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"nftescrow/core/genesis"
	"nftescrow/core/types"
	"nftescrow/crypto"
	"nftescrow/native/listing"
	"nftescrow/native/token"
)

const codeNotFound = -32004

func parseID(flagName, value string) (crypto.Identity, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Identity{}, fmt.Errorf("--%s is required", flagName)
	}
	id, err := genesis.ParseAccount(trimmed)
	if err != nil {
		return crypto.Identity{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return id, nil
}

func runDerive(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("derive", stderr)
	sellerFlag := fs.String("seller", "", "seller identity")
	assetFlag := fs.String("asset", "", "asset identity")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seller, err := parseID("seller", *sellerFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	asset, err := parseID("asset", *assetFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	addrs, err := listing.ResolveAddresses(seller, asset)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Listing:        %s\n", addrs.Listing)
	fmt.Fprintf(stdout, "Nonce:          %d\n", addrs.Nonce)
	fmt.Fprintf(stdout, "Escrow:         %s\n", addrs.Escrow)
	fmt.Fprintf(stdout, "Seller holding: %s\n", addrs.SellerHolding)
	return 0
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	keyPath := fs.String("key", "", "seller keystore file")
	assetFlag := fs.String("asset", "", "asset identity")
	priceFlag := fs.String("price", "", "price in lamports")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	asset, err := parseID("asset", *assetFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if strings.TrimSpace(*priceFlag) == "" {
		return printError(stderr, "--price is required")
	}
	price, err := strconv.ParseUint(strings.TrimSpace(*priceFlag), 10, 64)
	if err != nil {
		return printError(stderr, "--price must be an unsigned integer")
	}
	if price == 0 {
		return printError(stderr, "--price must be greater than zero")
	}
	key, err := requireKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ixs, err := listing.CreateListingInstructions(key.Identity(), asset, price)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, ixs, stdout, stderr)
}

func runBuy(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("buy", stderr)
	keyPath := fs.String("key", "", "buyer keystore file")
	sellerFlag := fs.String("seller", "", "seller identity")
	assetFlag := fs.String("asset", "", "asset identity")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seller, err := parseID("seller", *sellerFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	asset, err := parseID("asset", *assetFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := requireKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	buyer := key.Identity()
	var ixs []types.Instruction
	exists, err := holdingExists(buyer, asset)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if !exists {
		create, err := token.CreateHoldingInstruction(buyer, buyer, asset)
		if err != nil {
			return printError(stderr, err.Error())
		}
		ixs = append(ixs, create)
	}
	purchase, err := listing.PurchaseInstruction(buyer, seller, asset)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ixs = append(ixs, purchase)
	return submit(key, ixs, stdout, stderr)
}

func runCancel(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("cancel", stderr)
	keyPath := fs.String("key", "", "seller keystore file")
	assetFlag := fs.String("asset", "", "asset identity")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	asset, err := parseID("asset", *assetFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := requireKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ix, err := listing.CancelInstruction(key.Identity(), asset)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(key, []types.Instruction{ix}, stdout, stderr)
}

func runShow(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("show", stderr)
	sellerFlag := fs.String("seller", "", "seller identity")
	assetFlag := fs.String("asset", "", "asset identity")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seller, err := parseID("seller", *sellerFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	asset, err := parseID("asset", *assetFlag)
	if err != nil {
		return printError(stderr, err.Error())
	}
	result, err := rpcCall("listing_getListing", map[string]string{
		"seller": seller.String(),
		"asset":  asset.String(),
	}, false)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printJSON(stdout, result)
	return 0
}

func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("history", stderr)
	sellerFlag := fs.String("seller", "", "filter by seller identity")
	assetFlag := fs.String("asset", "", "filter by asset identity")
	statusFlag := fs.String("status", "", "filter by status (open, sold, cancelled)")
	limit := fs.Int("limit", 0, "maximum records to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	params := map[string]interface{}{}
	if strings.TrimSpace(*sellerFlag) != "" {
		seller, err := parseID("seller", *sellerFlag)
		if err != nil {
			return printError(stderr, err.Error())
		}
		params["seller"] = seller.String()
	}
	if strings.TrimSpace(*assetFlag) != "" {
		asset, err := parseID("asset", *assetFlag)
		if err != nil {
			return printError(stderr, err.Error())
		}
		params["asset"] = asset.String()
	}
	if status := strings.TrimSpace(*statusFlag); status != "" {
		params["status"] = status
	}
	if *limit > 0 {
		params["limit"] = *limit
	}
	result, err := rpcCall("listing_history", params, false)
	if err != nil {
		return printError(stderr, err.Error())
	}
	printJSON(stdout, result)
	return 0
}

func requireKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	return loadKey(path)
}

func holdingExists(owner, asset crypto.Identity) (bool, error) {
	_, err := rpcCall("token_getHolding", map[string]string{
		"owner": owner.String(),
		"asset": asset.String(),
	}, false)
	if err == nil {
		return true, nil
	}
	var rerr *rpcError
	if errors.As(err, &rerr) && rerr.Code == codeNotFound {
		return false, nil
	}
	return false, err
}

func submit(key *crypto.PrivateKey, ixs []types.Instruction, stdout, stderr io.Writer) int {
	tx := &types.Transaction{Nonce: uint64(cliNow().UnixNano()), Instructions: ixs}
	if err := tx.Sign(key); err != nil {
		return printError(stderr, err.Error())
	}
	result, err := rpcCall("listing_sendTransaction", tx, true)
	if err != nil {
		return printError(stderr, err.Error())
	}
	var receipt types.Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		printJSON(stdout, result)
		return 0
	}
	fmt.Fprintf(stdout, "Committed %s at height %d\n", receipt.TxHash, receipt.Height)
	for _, evt := range receipt.Events {
		fmt.Fprintf(stdout, "  %s %s\n", evt.Type, evt.Attributes["listing"])
	}
	return 0
}
