package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stl_settlements_total",
			Help: "Total settlement attempts by transaction type and result",
		},
		[]string{"type", "result"},
	)

	PayoutsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stl_payouts_initiated_total",
			Help: "Total seller payouts initiated via the gateway",
		},
	)

	ReaperReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stl_reaper_reclaimed_total",
			Help: "Total abandoned resale transactions failed by the reaper",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stl_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stl_cache_reads_total",
			Help: "Cache-aside reads by outcome (hit, stale, miss)",
		},
		[]string{"outcome"},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stl_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
