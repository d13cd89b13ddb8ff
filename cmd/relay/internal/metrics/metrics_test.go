package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shok8899/hq11/cmd/relay/internal/metrics"
)

func TestMetrics_RegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("Registering twice should fail")
	}

	m.TradeReceived()
	m.TradeReceived()
	m.TradeMalformed()
	m.RecordPublished(3)
	m.SubscribersChanged(5)
	m.DeliveryFailed()

	if got := testutil.ToFloat64(m.TradesReceived); got != 2 {
		t.Errorf("trades_received_total = %v", got)
	}
	if got := testutil.ToFloat64(m.TradesMalformed); got != 1 {
		t.Errorf("trades_malformed_total = %v", got)
	}
	if got := testutil.ToFloat64(m.Symbols); got != 3 {
		t.Errorf("symbols = %v", got)
	}
	if got := testutil.ToFloat64(m.Subscribers); got != 5 {
		t.Errorf("subscribers = %v", got)
	}
	if got := testutil.ToFloat64(m.DeliveryFailures); got != 1 {
		t.Errorf("delivery_failures_total = %v", got)
	}
}
