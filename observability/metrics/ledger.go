package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "nftescrow/ledger"

// LedgerMetrics tracks transaction and instruction outcomes of the node.
type LedgerMetrics struct {
	transactions   *prometheus.CounterVec
	instructions   *prometheus.CounterVec
	applyLatency   prometheus.Histogram
	activeListings prometheus.Gauge
	height         prometheus.Gauge

	txCounter  metric.Int64Counter
	applyMilli metric.Float64Histogram
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Count of submitted transactions by outcome.",
			}, []string{"outcome"}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ledger_instructions_total",
				Help: "Count of executed top-level instructions by program, operation and result.",
			}, []string{"program", "op", "result"}),
			applyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "ledger_apply_duration_seconds",
				Help:    "Time spent applying and committing a transaction.",
				Buckets: prometheus.DefBuckets,
			}),
			activeListings: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "listing_active",
				Help: "Number of listings currently open.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_height",
				Help: "Number of committed transactions.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.transactions,
			ledgerRegistry.instructions,
			ledgerRegistry.applyLatency,
			ledgerRegistry.activeListings,
			ledgerRegistry.height,
		)
		ledgerRegistry.initMeter()
	})
	return ledgerRegistry
}

// initMeter mirrors transaction outcomes onto the OpenTelemetry meter so they
// reach the OTLP exporter when telemetry is enabled.
func (m *LedgerMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter(meterName)
	counter, err := meter.Int64Counter("nftescrow.ledger.transactions")
	if err != nil {
		meter = noop.NewMeterProvider().Meter(meterName)
		counter, _ = meter.Int64Counter("nftescrow.ledger.transactions")
	}
	latency, err := meter.Float64Histogram("nftescrow.ledger.apply_ms")
	if err != nil {
		meter = noop.NewMeterProvider().Meter(meterName)
		latency, _ = meter.Float64Histogram("nftescrow.ledger.apply_ms")
	}
	m.txCounter = counter
	m.applyMilli = latency
}

// ObserveTransaction records a transaction outcome and its latency.
func (m *LedgerMetrics) ObserveTransaction(applied bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "rejected"
	}
	m.transactions.WithLabelValues(outcome).Inc()
	m.applyLatency.Observe(d.Seconds())
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.txCounter != nil {
		m.txCounter.Add(context.Background(), 1, attrs)
	}
	if m.applyMilli != nil {
		m.applyMilli.Record(context.Background(), float64(d)/float64(time.Millisecond), attrs)
	}
}

// ObserveInstruction records a single instruction outcome. result should be
// "ok" or a stable error name.
func (m *LedgerMetrics) ObserveInstruction(program, op, result string) {
	if m == nil {
		return
	}
	if program == "" {
		program = "unknown"
	}
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = "error"
	}
	m.instructions.WithLabelValues(program, op, result).Inc()
}

// AddActiveListings adjusts the open listing gauge.
func (m *LedgerMetrics) AddActiveListings(delta float64) {
	if m == nil {
		return
	}
	m.activeListings.Add(delta)
}

// SetHeight records the committed height.
func (m *LedgerMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}
