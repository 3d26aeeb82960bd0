package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return Event{Type: e.Type, Attributes: attrs}
}

// Receipt summarises a committed transaction.
type Receipt struct {
	Height    uint64  `json:"height"`
	TxHash    string  `json:"txHash"`
	StateRoot string  `json:"stateRoot"`
	Events    []Event `json:"events"`
}
