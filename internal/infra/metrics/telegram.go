package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		telegramUpdatesTotal,
		telegramRateLimitedTotal,
		telegramReplyChunks,
		telegramHTMLFallbackTotal,
	)
}

var (
	telegramUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_total",
			Help: "Inbound private messages by kind (command, button, text) and route.",
		},
		[]string{"kind", "route"},
	)

	telegramRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_rate_limited_total",
			Help: "Inbound messages dropped by the per-user rate limiter.",
		},
		[]string{"bucket"},
	)

	telegramReplyChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telegram_reply_chunks",
			Help:    "Number of Telegram messages a single reply was split into.",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
	)

	telegramHTMLFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_html_fallback_total",
			Help: "Replies resent as plain text after Telegram rejected their HTML.",
		},
	)
)

func IncTelegramUpdate(kind, route string) {
	telegramUpdatesTotal.WithLabelValues(norm(kind), norm(route)).Inc()
}

func IncRateLimited(bucket string) {
	telegramRateLimitedTotal.WithLabelValues(norm(bucket)).Inc()
}

func ObserveReplyChunks(n int) {
	telegramReplyChunks.Observe(float64(n))
}

func IncHTMLFallback() { telegramHTMLFallbackTotal.Inc() }
