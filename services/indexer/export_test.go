package indexer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"nftescrow/native/listing"
)

func TestExportWritesCSVAndParquet(t *testing.T) {
	store := newTestStore(t)
	seller, buyer, asset := identity(1), identity(2), identity(3)
	addr := identity(10)
	record := &listing.Listing{Active: true, Seller: seller, Asset: asset, Price: 1000, Nonce: 254}
	require.NoError(t, store.Apply(rawEvent{listing.NewCreatedEvent(addr, record)}))
	require.NoError(t, store.Apply(rawEvent{listing.NewPurchasedEvent(addr, record, buyer)}))
	require.NoError(t, store.Apply(rawEvent{listing.NewCreatedEvent(addr, record)}))

	dir := filepath.Join(t.TempDir(), "reports")
	report, err := store.Export(dir, "listings", Filter{Seller: seller.String()})
	require.NoError(t, err)
	require.Equal(t, 2, report.Rows)

	file, err := os.Open(report.CSVPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, reportHeader, rows[0])
	require.Equal(t, "1000", rows[1][4])

	fr, err := local.NewLocalFileReader(report.ParquetPath)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(parquetRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(2), pr.GetNumRows())
	got := make([]parquetRow, 2)
	require.NoError(t, pr.Read(&got))
	statuses := []string{got[0].Status, got[1].Status}
	require.ElementsMatch(t, []string{string(StatusSold), string(StatusOpen)}, statuses)
	for _, row := range got {
		require.Equal(t, int64(1000), row.Price)
		require.Equal(t, int32(254), row.Nonce)
		require.Equal(t, addr.String(), row.Listing)
	}
}

func TestExportSkipsEmptyResults(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(t.TempDir(), "reports")
	report, err := store.Export(dir, "listings", Filter{Status: StatusSold})
	require.NoError(t, err)
	require.Zero(t, report.Rows)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestParquetRowSchemaIsAccepted(t *testing.T) {
	file, err := os.Create(filepath.Join(t.TempDir(), "schema.parquet"))
	require.NoError(t, err)
	defer file.Close()
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), new(parquetRow), 1)
	require.NoError(t, err)
	require.NoError(t, pw.WriteStop())
}
