package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		chatEventsTotal,
		chatExchangeTokens,
		chatEvictedExchangesTotal,
		chatActiveSessions,
	)
}

var (
	chatEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Lifecycle events handled, by event and result.",
		},
		[]string{"event", "result"},
	)

	chatExchangeTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_exchange_tokens",
			Help:    "Marginal token cost booked per exchange.",
			Buckets: []float64{16, 64, 128, 256, 512, 1024, 2048, 4096},
		},
	)

	chatEvictedExchangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_evicted_exchanges_total",
			Help: "Exchanges dropped from transcripts to stay within the token budget.",
		},
	)

	chatActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_sessions",
			Help: "Users currently in an active chat.",
		},
	)
)

// IncChatEvent counts a lifecycle event; result is "ok" or a short error class.
func IncChatEvent(event, result string) {
	chatEventsTotal.WithLabelValues(norm(event), norm(result)).Inc()
}

func ObserveExchange(cost, evicted int) {
	chatExchangeTokens.Observe(float64(cost))
	if evicted > 0 {
		chatEvictedExchangesTotal.Add(float64(evicted))
	}
}

func SetActiveSessions(n int) {
	chatActiveSessions.Set(float64(n))
}
