// Package metrics wires the resolver's operational counters into
// Prometheus, grounded on the client_golang usage found across the
// retrieved DNS tooling pack (poyrazK-cloudDNS, AdGuardDNS, semihalev-sdns,
// grafana-k6 all vendor prometheus/client_golang for exactly this purpose).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/histogram/gauge the handler and resolver
// touch. Construct once per process and pass by reference.
type Metrics struct {
	QueryCount        prometheus.Counter
	ResolutionFailure *prometheus.CounterVec
	ResolutionSeconds prometheus.Histogram
	QuerySizeBytes    prometheus.Histogram
	ResponseSizeBytes prometheus.Histogram
	CacheEntries      prometheus.GaugeFunc
}

// New registers every metric on reg and returns the bundle. cacheLen is
// polled lazily by the cache_entries gauge on every scrape.
func New(reg prometheus.Registerer, cacheLen func() int) *Metrics {
	m := &Metrics{
		QueryCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rrdns_query_count",
			Help: "Total number of client queries received.",
		}),
		ResolutionFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rrdns_resolution_failure",
			Help: "Resolutions that ended without a client reply, by reason.",
		}, []string{"reason"}),
		ResolutionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rrdns_resolution_duration",
			Help:    "Time spent in Resolver.Resolve per client query.",
			Buckets: prometheus.DefBuckets,
		}),
		QuerySizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rrdns_query_size",
			Help:    "Size of inbound client query datagrams.",
			Buckets: prometheus.LinearBuckets(16, 16, 16),
		}),
		ResponseSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rrdns_query_response_size",
			Help:    "Size of outbound response datagrams.",
			Buckets: prometheus.LinearBuckets(16, 32, 16),
		}),
	}
	m.CacheEntries = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "rrdns_cache_entries",
		Help: "Live resource records currently held in the cache.",
	}, func() float64 { return float64(cacheLen()) })

	reg.MustRegister(
		m.QueryCount,
		m.ResolutionFailure,
		m.ResolutionSeconds,
		m.QuerySizeBytes,
		m.ResponseSizeBytes,
		m.CacheEntries,
	)
	return m
}

// ObserveResolution records how long a resolution took, in the same style
// as the timing helpers scattered through the pack's handler code.
func (m *Metrics) ObserveResolution(start time.Time) {
	m.ResolutionSeconds.Observe(time.Since(start).Seconds())
}
