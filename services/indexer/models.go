package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status is the lifecycle state of an indexed listing.
type Status string

// Listing statuses.
const (
	StatusOpen      Status = "open"
	StatusSold      Status = "sold"
	StatusCancelled Status = "cancelled"
)

// ListingRecord is one lifetime of a listing address, from creation to
// purchase or cancellation. The same address may appear again once a seller
// relists the asset.
type ListingRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Listing   string    `gorm:"size:64;index"`
	Seller    string    `gorm:"size:64;index"`
	Asset     string    `gorm:"size:64;index"`
	Price     string    `gorm:"size:20;not null"`
	Nonce     uint8
	Buyer     string `gorm:"size:64"`
	Status    Status `gorm:"size:16;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&ListingRecord{})
}
