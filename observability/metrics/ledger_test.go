package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func histogramCount(t *testing.T, m *LedgerMetrics) uint64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.applyLatency.Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestObserveTransactionCountsOutcomes(t *testing.T) {
	m := Ledger()
	applied := testutil.ToFloat64(m.transactions.WithLabelValues("applied"))
	rejected := testutil.ToFloat64(m.transactions.WithLabelValues("rejected"))
	samples := histogramCount(t, m)

	m.ObserveTransaction(true, 3*time.Millisecond)
	m.ObserveTransaction(false, time.Millisecond)

	require.Equal(t, applied+1, testutil.ToFloat64(m.transactions.WithLabelValues("applied")))
	require.Equal(t, rejected+1, testutil.ToFloat64(m.transactions.WithLabelValues("rejected")))
	require.Equal(t, samples+2, histogramCount(t, m))
	require.NotNil(t, m.txCounter)
	require.NotNil(t, m.applyMilli)
}

func TestObserveInstructionDefaultsLabels(t *testing.T) {
	m := Ledger()
	before := testutil.ToFloat64(m.instructions.WithLabelValues("unknown", "unknown", "error"))
	m.ObserveInstruction("", "", "")
	require.Equal(t, before+1, testutil.ToFloat64(m.instructions.WithLabelValues("unknown", "unknown", "error")))
}

func TestGaugesTrackListingsAndHeight(t *testing.T) {
	m := Ledger()
	active := testutil.ToFloat64(m.activeListings)
	m.AddActiveListings(1)
	m.AddActiveListings(1)
	m.AddActiveListings(-1)
	require.Equal(t, active+1, testutil.ToFloat64(m.activeListings))

	m.SetHeight(42)
	require.Equal(t, float64(42), testutil.ToFloat64(m.height))
}

func TestNilLedgerMetricsIsSafe(t *testing.T) {
	var m *LedgerMetrics
	require.NotPanics(t, func() {
		m.ObserveTransaction(true, time.Millisecond)
		m.ObserveInstruction("listing", "purchase", "ok")
		m.AddActiveListings(1)
		m.SetHeight(1)
	})
}
