package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for order lifecycle and invoicing
// observability.
type Metrics struct {
	// Invoicing
	InvoicesIssued  *prometheus.CounterVec
	InvoiceFailures *prometheus.CounterVec

	// Refunds
	RefundsIssued prometheus.Counter
	RefundAmount  prometheus.Counter

	// Status transitions
	TransitionsApplied *prometheus.CounterVec
	TransitionsDenied  *prometheus.CounterVec

	// External API performance
	ProviderCallDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics. A nil registerer uses the
// default global registry; tests pass their own to avoid duplicate
// registration across cases.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "kasse"
	}

	subsystem := "orders"
	factory := promauto.With(reg)

	return &Metrics{
		InvoicesIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoices_issued_total",
				Help:      "Total invoices/charges successfully created with a billing provider",
			},
			[]string{"provider"},
		),
		InvoiceFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "invoice_failures_total",
				Help:      "Total failed invoicing attempts by provider and error code",
			},
			[]string{"provider", "code"},
		),
		RefundsIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refunds_issued_total",
				Help:      "Total refund orders created",
			},
		),
		RefundAmount: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "refund_amount_total",
				Help:      "Total refunded amount in major currency units",
			},
		),
		TransitionsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "status_transitions_total",
				Help:      "Order status transitions applied",
			},
			[]string{"from", "to"},
		),
		TransitionsDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "status_transitions_denied_total",
				Help:      "Order status transitions rejected by the transition graph",
			},
			[]string{"from", "to"},
		),
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "provider_call_duration_seconds",
				Help:      "Latency of external billing provider calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}
