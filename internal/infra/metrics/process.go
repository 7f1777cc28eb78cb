package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo, recordCacheTotal)
}

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relay_build_info",
			Help: "Always 1; labelled with the running version and commit.",
		},
		[]string{"version", "commit"},
	)

	recordCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cache_lookups_total",
			Help: "Redis cache lookups in front of the durable store, by outcome (hit, miss, bypass, error).",
		},
		[]string{"cache", "outcome"},
	)
)

func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version, commit).Set(1)
}

func IncCacheRequest(cache, outcome string) {
	recordCacheTotal.WithLabelValues(norm(cache), norm(outcome)).Inc()
}
