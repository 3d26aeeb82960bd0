package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nftescrow/config"
	"nftescrow/core/genesis"
	"nftescrow/observability/logging"
	"nftescrow/services/indexer"
)

var reportNow = time.Now

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("listing-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.toml", "node configuration file")
	dsn := fs.String("dsn", "", "indexer DSN (overrides the config)")
	outDir := fs.String("out", "./reports", "directory to write the report into")
	name := fs.String("name", "", "report file name without extension (default listings-YYYYMMDD)")
	sellerFlag := fs.String("seller", "", "filter by seller identity")
	assetFlag := fs.String("asset", "", "filter by asset identity")
	statusFlag := fs.String("status", "", "filter by status (open, sold, cancelled)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	filter, err := buildFilter(*sellerFlag, *assetFlag, *statusFlag)
	if err != nil {
		fmt.Fprintf(stderr, "listing-report: %v\n", err)
		return 1
	}
	target := strings.TrimSpace(*dsn)
	if target == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "listing-report: load config: %v\n", err)
			return 1
		}
		target = strings.TrimSpace(cfg.Indexer.DSN)
	}
	if target == "" {
		fmt.Fprintln(stderr, "listing-report: no indexer DSN configured")
		return 1
	}
	fileName := strings.TrimSpace(*name)
	if fileName == "" {
		fileName = "listings-" + reportNow().UTC().Format("20060102")
	}

	logger := logging.SetupWithOptions(logging.Options{Service: "listing-report", Level: "warn"})
	store, err := indexer.Open(target)
	if err != nil {
		fmt.Fprintf(stderr, "listing-report: %v\n", err)
		return 1
	}
	defer store.Close()
	store.SetLogger(logger)

	report, err := store.Export(*outDir, fileName, filter)
	if err != nil {
		fmt.Fprintf(stderr, "listing-report: %v\n", err)
		return 1
	}
	if report.Rows == 0 {
		fmt.Fprintln(stdout, "No listings matched; nothing written.")
		return 0
	}
	fmt.Fprintf(stdout, "Rows:    %d\n", report.Rows)
	fmt.Fprintf(stdout, "CSV:     %s\n", report.CSVPath)
	fmt.Fprintf(stdout, "Parquet: %s\n", report.ParquetPath)
	return 0
}

func buildFilter(seller, asset, status string) (indexer.Filter, error) {
	var filter indexer.Filter
	if s := strings.TrimSpace(seller); s != "" {
		id, err := genesis.ParseAccount(s)
		if err != nil {
			return filter, fmt.Errorf("--seller: %w", err)
		}
		filter.Seller = id.String()
	}
	if a := strings.TrimSpace(asset); a != "" {
		id, err := genesis.ParseAccount(a)
		if err != nil {
			return filter, fmt.Errorf("--asset: %w", err)
		}
		filter.Asset = id.String()
	}
	switch st := indexer.Status(strings.ToLower(strings.TrimSpace(status))); st {
	case "":
	case indexer.StatusOpen, indexer.StatusSold, indexer.StatusCancelled:
		filter.Status = st
	default:
		return filter, fmt.Errorf("unknown status %q", status)
	}
	return filter, nil
}
