package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = os.Getenv("NFTESCROW_RPC_TOKEN")

	rpcCall = callRPC
	cliNow  = time.Now
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "derive":
		return runDerive(args[1:], stdout, stderr)
	case "list":
		return runList(args[1:], stdout, stderr)
	case "buy":
		return runBuy(args[1:], stdout, stderr)
	case "cancel":
		return runCancel(args[1:], stdout, stderr)
	case "show":
		return runShow(args[1:], stdout, stderr)
	case "history":
		return runHistory(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: listing-cli [--rpc URL] <command> [flags]

Commands:
  keygen   --out FILE                          create an encrypted keystore
  address  --key FILE                          print the identity of a keystore
  derive   --seller ID --asset ID              print the listing addresses
  list     --key FILE --asset ID --price N     escrow an asset for sale
  buy      --key FILE --seller ID --asset ID   purchase a listed asset
  cancel   --key FILE --asset ID               withdraw a listing
  show     --seller ID --asset ID              print an open listing
  history  [--seller ID] [--asset ID] [--status S]

Environment:
  RPC_URL                 node endpoint (default http://127.0.0.1:8899)
  NFTESCROW_RPC_TOKEN     bearer token for listing_sendTransaction
  NFTESCROW_KEY_PASS      keystore passphrase (prompted when unset)`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8899"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func callRPC(method string, params interface{}, requireAuth bool) (json.RawMessage, error) {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth && strings.TrimSpace(rpcAuthToken) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return decoded.Result, nil
}

func printJSON(w io.Writer, raw json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, pretty.String())
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}
