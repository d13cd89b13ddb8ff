// Package metrics exposes the relay's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relay"

type Metrics struct {
	TradesReceived   prometheus.Counter
	TradesMalformed  prometheus.Counter
	TradesDropped    prometheus.Counter
	RecordsPublished prometheus.Counter
	DeliveryFailures prometheus.Counter
	Subscribers      prometheus.Gauge
	Symbols          prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		TradesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_received_total",
			Help:      "Trade events read from the upstream feed",
		}),
		TradesMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_malformed_total",
			Help:      "Trade events dropped for an unparsable or negative price or quantity",
		}),
		TradesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_dropped_total",
			Help:      "Trade events dropped because a worker queue was full",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Price records stored and broadcast",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Pushes that failed and disconnected a subscriber",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Live subscribers",
		}),
		Symbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols",
			Help:      "Symbols held in the latest-price store",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.TradesReceived,
		m.TradesMalformed,
		m.TradesDropped,
		m.RecordsPublished,
		m.DeliveryFailures,
		m.Subscribers,
		m.Symbols,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) TradeReceived()            { m.TradesReceived.Inc() }
func (m *Metrics) TradeMalformed()           { m.TradesMalformed.Inc() }
func (m *Metrics) TradeDropped()             { m.TradesDropped.Inc() }
func (m *Metrics) RecordPublished(known int) { m.RecordsPublished.Inc(); m.Symbols.Set(float64(known)) }
func (m *Metrics) SubscribersChanged(n int)  { m.Subscribers.Set(float64(n)) }
func (m *Metrics) DeliveryFailed()           { m.DeliveryFailures.Inc() }
