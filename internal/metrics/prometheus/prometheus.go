package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements metrics.Collector on top of Prometheus.
type Collector struct {
	payments       *prometheus.CounterVec
	paymentLatency *prometheus.HistogramVec
	emittedTotal   prometheus.Counter
	tokensIssued   prometheus.Counter
}

// NewCollector creates the collector and its metric vectors.
func NewCollector(namespace string) *Collector {
	return &Collector{
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_total",
				Help:      "Total payment operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		paymentLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_duration_seconds",
				Help:      "Payment operation latency by kind",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		emittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emitted_minor_units_total",
				Help:      "Total currency emitted into accounts, in minor units",
			},
		),
		tokensIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "card_tokens_issued_total",
				Help:      "Total card tokens issued",
			},
		),
	}
}

// Register adds all metrics to the given registerer.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.payments, c.paymentLatency, c.emittedTotal, c.tokensIssued,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordPayment(kind, outcome string, duration time.Duration) {
	c.payments.WithLabelValues(kind, outcome).Inc()
	c.paymentLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (c *Collector) RecordEmission(amount int64) {
	c.emittedTotal.Add(float64(amount))
}

func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}
