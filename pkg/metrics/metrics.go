package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "siteadmin", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "siteadmin", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	StoreWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "siteadmin", Name: "content_store_writes_total", Help: "Content writes by store (file|database) and outcome (ok|skipped|error)."},
		[]string{"store", "outcome"},
	)
	ContentReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "siteadmin", Name: "content_reads_total", Help: "Page reads by resolver policy and the source that answered (database|file|none)."},
		[]string{"policy", "source"},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "siteadmin", Name: "content_cache_lookups_total", Help: "Page cache lookups by result (hit|miss)."},
		[]string{"result"},
	)
	SyncItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "siteadmin", Name: "content_sync_items_total", Help: "Items processed by batch sync jobs by job and outcome."},
		[]string{"job", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(StoreWrites)
	reg.MustRegister(ContentReads)
	reg.MustRegister(CacheLookups)
	reg.MustRegister(SyncItems)
}
