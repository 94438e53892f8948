package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionfy_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visionfy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionfy_generations_total",
			Help: "Generation attempts by operation and outcome.",
		},
		[]string{"operation", "status"},
	)

	ImagesGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionfy_images_generated_total",
			Help: "Images stored after a successful generation.",
		},
		[]string{"operation"},
	)

	LimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visionfy_limit_rejections_total",
			Help: "Requests rejected by the rate limiter or the daily quota.",
		},
		[]string{"limit"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visionfy_provider_request_duration_seconds",
			Help:    "Upstream image provider latency in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
		},
		[]string{"operation"},
	)

	GenerationEventsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visionfy_generation_events_persisted_total",
			Help: "Generation events written to postgres by the history consumer.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		ImagesGeneratedTotal,
		LimitRejectionsTotal,
		ProviderRequestDuration,
		GenerationEventsPersisted,
	)
}
