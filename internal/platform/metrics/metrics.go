package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	UsersRegistered prometheus.Counter
	ItemsListed     prometheus.Counter
	ItemsPurchased  prometheus.Counter
	Withdrawals     prometheus.Counter
	FailedTransfers prometheus.Counter
	EscrowHeld      prometheus.Gauge
	RequestLatency  *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradepost_users_registered_total",
			Help: "Total number of users registered",
		}),
		ItemsListed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradepost_items_listed_total",
			Help: "Total number of items listed for sale",
		}),
		ItemsPurchased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradepost_items_purchased_total",
			Help: "Total number of completed purchases",
		}),
		Withdrawals: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradepost_withdrawals_total",
			Help: "Total number of completed escrow withdrawals",
		}),
		FailedTransfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "tradepost_failed_transfers_total",
			Help: "Total number of ledger transfers that failed",
		}),
		EscrowHeld: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradepost_escrow_held",
			Help: "Funds currently held in escrow across all sellers",
		}),
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradepost_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
