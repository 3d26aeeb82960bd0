package listing

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"

	"nftescrow/crypto"
)

// ListingSize is the persisted size of a listing record: an 8-byte record
// tag followed by active(1) seller(32) asset(32) price(8) nonce(1).
const ListingSize = 8 + 1 + crypto.IdentitySize + crypto.IdentitySize + 8 + 1

// recordTag prefixes every listing record so foreign account data is never
// mistaken for a listing.
var recordTag = discriminator("account:ListingAccount")

func discriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte(name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// Listing is the persistent record of one sale. An inactive listing carries
// zero values in every field but Nonce.
type Listing struct {
	Active bool
	Seller crypto.Identity
	Asset  crypto.Identity
	Price  uint64
	Nonce  uint8
}

// Encode serialises the listing into its fixed record layout.
func (l *Listing) Encode() []byte {
	buf := make([]byte, ListingSize)
	copy(buf[:8], recordTag[:])
	if l.Active {
		buf[8] = 1
	}
	copy(buf[9:41], l.Seller[:])
	copy(buf[41:73], l.Asset[:])
	binary.LittleEndian.PutUint64(buf[73:81], l.Price)
	buf[81] = l.Nonce
	return buf
}

// DecodeListing parses a listing record.
func DecodeListing(data []byte) (*Listing, error) {
	if len(data) != ListingSize {
		return nil, errMalformedRecord
	}
	var tag [8]byte
	copy(tag[:], data[:8])
	if tag != recordTag {
		return nil, errMalformedRecord
	}
	if data[8] > 1 {
		return nil, errMalformedRecord
	}
	l := &Listing{
		Active: data[8] == 1,
		Price:  binary.LittleEndian.Uint64(data[73:81]),
		Nonce:  data[81],
	}
	copy(l.Seller[:], data[9:41])
	copy(l.Asset[:], data[41:73])
	return l, nil
}
