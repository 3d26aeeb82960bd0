package indexer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftescrow/core/events"
	"nftescrow/native/listing"
)

// ErrNoOpenListing is returned when a closing event has no matching open
// record.
var ErrNoOpenListing = errors.New("indexer: no open listing")

// Store persists listing history derived from committed ledger events.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to dsn and migrates the schema. DSNs starting with
// postgres:// or postgresql:// use PostgreSQL; anything else is treated as a
// SQLite path.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Store{db: db, logger: slog.Default(), now: time.Now}, nil
}

// SetLogger overrides the logger used for indexing failures.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Failures are logged; the ledger is the
// source of truth and the index can be rebuilt from receipts.
func (s *Store) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if err := s.Apply(evt); err != nil {
		s.logger.Error("index listing event", "type", evt.EventType(), "error", err)
	}
}

// Apply records a single listing event. Events of other types are ignored.
func (s *Store) Apply(evt events.Event) error {
	payload := evt.Event()
	if payload == nil {
		return nil
	}
	attrs := payload.Attributes
	switch payload.Type {
	case listing.EventTypeListingCreated:
		nonce, err := strconv.ParseUint(attrs["nonce"], 10, 8)
		if err != nil {
			return fmt.Errorf("indexer: nonce: %w", err)
		}
		record := &ListingRecord{
			ID:      uuid.New(),
			Listing: attrs["listing"],
			Seller:  attrs["seller"],
			Asset:   attrs["asset"],
			Price:   attrs["price"],
			Nonce:   uint8(nonce),
			Status:  StatusOpen,
		}
		return s.db.Create(record).Error
	case listing.EventTypeListingPurchased:
		return s.close(attrs["listing"], StatusSold, attrs["buyer"])
	case listing.EventTypeListingCancelled:
		return s.close(attrs["listing"], StatusCancelled, "")
	default:
		return nil
	}
}

func (s *Store) close(address string, status Status, buyer string) error {
	closedAt := s.now().UTC()
	res := s.db.Model(&ListingRecord{}).
		Where("listing = ? AND status = ?", address, StatusOpen).
		Updates(map[string]interface{}{
			"status":    status,
			"buyer":     buyer,
			"closed_at": &closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNoOpenListing, address)
	}
	return nil
}

// Filter narrows history queries. Zero values match everything.
type Filter struct {
	Seller string
	Asset  string
	Status Status
	Limit  int
}

// History returns listing records matching filter, newest first.
func (s *Store) History(filter Filter) ([]ListingRecord, error) {
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
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var records []ListingRecord
	err := query.Order("created_at DESC").Order("id").Limit(limit).Find(&records).Error
	return records, err
}

// BySeller returns the listing history of seller.
func (s *Store) BySeller(seller string) ([]ListingRecord, error) {
	return s.History(Filter{Seller: seller})
}

// ByAsset returns the listing history of asset.
func (s *Store) ByAsset(asset string) ([]ListingRecord, error) {
	return s.History(Filter{Asset: asset})
}

// OpenListings returns the currently open listings.
func (s *Store) OpenListings() ([]ListingRecord, error) {
	return s.History(Filter{Status: StatusOpen})
}
