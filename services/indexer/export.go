package indexer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Report describes the files written by Export.
type Report struct {
	CSVPath     string
	ParquetPath string
	Rows        int
}

var reportHeader = []string{
	"id", "listing", "seller", "asset", "price", "nonce", "buyer", "status", "created_at", "closed_at",
}

// Records returns every record matching filter in creation order. The filter
// limit is ignored.
func (s *Store) Records(filter Filter) ([]ListingRecord, error) {
	query := s.db.Model(&ListingRecord{})
	if filter.Seller != "" {
		query = query.Where("seller = ?", filter.Seller)
	}
	if filter.Asset != "" {
		query = query.Where("asset = ?", filter.Asset)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var records []ListingRecord
	err := query.Order("created_at ASC").Order("id").Find(&records).Error
	return records, err
}

// Export writes the records matching filter to dir as <name>.csv and
// <name>.parquet. Nothing is written when no record matches.
func (s *Store) Export(dir, name string, filter Filter) (Report, error) {
	records, err := s.Records(filter)
	if err != nil {
		return Report{}, fmt.Errorf("indexer: export query: %w", err)
	}
	if len(records) == 0 {
		return Report{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Report{}, fmt.Errorf("indexer: create export dir: %w", err)
	}
	report := Report{
		CSVPath:     filepath.Join(dir, name+".csv"),
		ParquetPath: filepath.Join(dir, name+".parquet"),
		Rows:        len(records),
	}
	if err := writeCSV(report.CSVPath, records); err != nil {
		return Report{}, err
	}
	if err := writeParquet(report.ParquetPath, records); err != nil {
		return Report{}, err
	}
	s.logger.Info("indexer: export written", "csv", report.CSVPath, "parquet", report.ParquetPath, "rows", report.Rows)
	return report, nil
}

func writeCSV(path string, records []ListingRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(reportHeader); err != nil {
		return fmt.Errorf("indexer: write csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			rec.ID.String(),
			rec.Listing,
			rec.Seller,
			rec.Asset,
			rec.Price,
			strconv.FormatUint(uint64(rec.Nonce), 10),
			rec.Buyer,
			string(rec.Status),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			formatTime(rec.ClosedAt),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("indexer: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("indexer: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	ID        string `parquet:"name=id, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Listing   string `parquet:"name=listing, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Seller    string `parquet:"name=seller, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Asset     string `parquet:"name=asset, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Price     int64  `parquet:"name=price, type=INT64"`
	Nonce     int32  `parquet:"name=nonce, type=INT32"`
	Buyer     string `parquet:"name=buyer, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Status    string `parquet:"name=status, type=UTF8, encoding=PLAIN_DICTIONARY"`
	CreatedAt string `parquet:"name=created_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
	ClosedAt  string `parquet:"name=closed_at, type=UTF8, encoding=PLAIN_DICTIONARY"`
}

func writeParquet(path string, records []ListingRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range records {
		price, err := strconv.ParseUint(rec.Price, 10, 64)
		if err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: record %s price %q: %w", rec.ID, rec.Price, err)
		}
		row := &parquetRow{
			ID:        rec.ID.String(),
			Listing:   rec.Listing,
			Seller:    rec.Seller,
			Asset:     rec.Asset,
			Price:     int64(price),
			Nonce:     int32(rec.Nonce),
			Buyer:     rec.Buyer,
			Status:    string(rec.Status),
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
			ClosedAt:  formatTime(rec.ClosedAt),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
