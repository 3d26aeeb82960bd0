package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"nftescrow/core/events"
	"nftescrow/core/types"
)

const (
	wsWriteTimeout     = 10 * time.Second
	streamBufferSize   = 64
	streamEventsPrefix = "listing."
)

// StreamEvent is the frame written to websocket subscribers.
type StreamEvent struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventHub fans committed listing events out to websocket subscribers. It
// implements events.Emitter so the node can feed it directly. Slow
// subscribers lose events rather than stall the ledger.
type EventHub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan StreamEvent
}

// NewEventHub constructs an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[int]chan StreamEvent)}
}

// Emit implements events.Emitter.
func (h *EventHub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil || !strings.HasPrefix(payload.Type, streamEventsPrefix) {
		return
	}
	frame := streamEventFrom(payload)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// to release it.
func (h *EventHub) Subscribe() (<-chan StreamEvent, func()) {
	ch := make(chan StreamEvent, streamBufferSize)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *EventHub) subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func streamEventFrom(evt *types.Event) StreamEvent {
	attrs := make(map[string]string, len(evt.Attributes))
	for k, v := range evt.Attributes {
		attrs[k] = v
	}
	return StreamEvent{Type: evt.Type, Attributes: attrs}
}

// Events returns the hub backing the websocket stream.
func (s *Server) Events() *EventHub {
	return s.hub
}

func (s *Server) handleListingStream(w http.ResponseWriter, r *http.Request) {
	seller := strings.TrimSpace(r.URL.Query().Get("seller"))
	asset := strings.TrimSpace(r.URL.Query().Get("asset"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.cfg.StreamOrigins})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamListings(ctx, conn, seller, asset); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamListings(ctx context.Context, conn *websocket.Conn, seller, asset string) error {
	updates, cancel := s.hub.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if seller != "" && evt.Attributes["seller"] != seller {
				continue
			}
			if asset != "" && evt.Attributes["asset"] != asset {
				continue
			}
			if err := writeStreamEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, evt StreamEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
