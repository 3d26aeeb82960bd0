package types

// AccountStorageOverhead is the fixed number of bytes charged for every
// account on top of its data.
const AccountStorageOverhead = 128

// Rent parameterises the lamport deposit required to keep an account alive.
type Rent struct {
	LamportsPerByteYear uint64 `toml:"LamportsPerByteYear"`
	ExemptionYears      uint64 `toml:"ExemptionYears"`
}

// DefaultRent mirrors the parameters used by the reference ledger.
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionYears: 2}
}

// MinimumBalance returns the deposit needed for an account holding dataLen
// bytes. The deposit is returned to the closer when the account is removed.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionYears
}
