package listing

import (
	"strconv"

	"nftescrow/core/types"
	"nftescrow/crypto"
)

const (
	EventTypeListingCreated   = "listing.created"
	EventTypeListingPurchased = "listing.purchased"
	EventTypeListingCancelled = "listing.cancelled"
)

type listingEvent struct {
	evt *types.Event
}

func (e listingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e listingEvent) Event() *types.Event { return e.evt }

// NewCreatedEvent returns the canonical payload for a newly opened listing.
func NewCreatedEvent(address crypto.Identity, l *Listing) *types.Event {
	evt := newListingEvent(EventTypeListingCreated, address, l)
	evt.Attributes["price"] = strconv.FormatUint(l.Price, 10)
	evt.Attributes["nonce"] = strconv.FormatUint(uint64(l.Nonce), 10)
	return evt
}

// NewPurchasedEvent returns the canonical payload for a completed sale.
func NewPurchasedEvent(address crypto.Identity, l *Listing, buyer crypto.Identity) *types.Event {
	evt := newListingEvent(EventTypeListingPurchased, address, l)
	evt.Attributes["price"] = strconv.FormatUint(l.Price, 10)
	evt.Attributes["buyer"] = buyer.String()
	return evt
}

// NewCancelledEvent returns the canonical payload for a listing withdrawn by
// its seller.
func NewCancelledEvent(address crypto.Identity, l *Listing) *types.Event {
	return newListingEvent(EventTypeListingCancelled, address, l)
}

func newListingEvent(eventType string, address crypto.Identity, l *Listing) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"listing": address.String(),
			"seller":  l.Seller.String(),
			"asset":   l.Asset.String(),
		},
	}
}
