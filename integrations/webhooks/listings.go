package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/sha256-simd"

	"nftescrow/core/events"
	"nftescrow/native/listing"
)

const (
	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 256

	// EventHeader carries the listing event type of a delivery.
	EventHeader = "X-Listing-Event"
	// SignatureHeader carries the hex HMAC-SHA256 of the body, prefixed "sha256=".
	SignatureHeader = "X-Listing-Signature"
)

// ListingPayload is the webhook body for a committed listing event.
type ListingPayload struct {
	Type       string            `json:"type"`
	DeliveryID string            `json:"deliveryId"`
	Listing    string            `json:"listing"`
	Seller     string            `json:"seller"`
	Asset      string            `json:"asset"`
	Price      string            `json:"price,omitempty"`
	Buyer      string            `json:"buyer,omitempty"`
	Attributes map[string]string `json:"attributes"`
	SentAt     time.Time         `json:"sentAt"`
}

// Dispatcher delivers listing events to an HTTP endpoint with retry and
// exponential backoff. It implements events.Emitter; Emit never blocks the
// ledger and drops events when the queue is full.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration
	logger      *slog.Logger
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	eventType string
	body      []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithLogger sets the logger used for dropped and failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	dispatcher := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      slog.Default(),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	dispatcher.wg.Add(1)
	go dispatcher.worker()
	return dispatcher, nil
}

// Close stops the dispatcher and waits for inflight deliveries to complete.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

// Emit implements events.Emitter. Only listing events are forwarded.
func (d *Dispatcher) Emit(evt events.Event) {
	if d == nil || evt == nil {
		return
	}
	switch evt.EventType() {
	case listing.EventTypeListingCreated, listing.EventTypeListingPurchased, listing.EventTypeListingCancelled:
	default:
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	body, err := json.Marshal(d.buildPayload(payload.Type, payload.Attributes))
	if err != nil {
		d.logger.Warn("webhook: encode payload", "error", err)
		return
	}
	select {
	case d.queue <- delivery{eventType: payload.Type, body: body}:
	case <-d.ctx.Done():
	default:
		d.logger.Warn("webhook: queue full, dropping event", "type", payload.Type, "listing", payload.Attributes["listing"])
	}
}

func (d *Dispatcher) buildPayload(eventType string, attrs map[string]string) ListingPayload {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return ListingPayload{
		Type:       eventType,
		DeliveryID: uuid.NewString(),
		Listing:    attrs["listing"],
		Seller:     attrs["seller"],
		Asset:      attrs["asset"],
		Price:      attrs["price"],
		Buyer:      attrs["buyer"],
		Attributes: copied,
		SentAt:     d.now().UTC(),
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	attempt := 0
	backoff := d.minBackoff
	for {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Error("webhook: delivery abandoned", "type", job.eventType, "attempts", attempt, "error", err)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, job.eventType)
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value receivers should expect for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	if next < current {
		return max
	}
	return next
}
