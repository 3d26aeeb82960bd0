package state

import "fmt"

var txSeenPrefix = []byte("tx-seen:")

func txSeenKey(hash [32]byte) []byte {
	buf := make([]byte, len(txSeenPrefix)+len(hash))
	copy(buf, txSeenPrefix)
	copy(buf[len(txSeenPrefix):], hash[:])
	return buf
}

// HasTransaction reports whether a transaction with the given hash has
// already been applied.
func (m *Manager) HasTransaction(hash [32]byte) (bool, error) {
	return m.KVGet(txSeenKey(hash), nil)
}

// MarkTransaction records the hash of an applied transaction at the given
// height so it cannot be replayed.
func (m *Manager) MarkTransaction(hash [32]byte, height uint64) error {
	seen, err := m.HasTransaction(hash)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("state: transaction %x already recorded", hash)
	}
	return m.KVPut(txSeenKey(hash), height)
}
