package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus instruments ProxyCast's pipeline and
// streaming core update on every request, grounded on the teacher's
// internal/metrics/collector.go (one *Vec per concern, constructed once
// via promauto so registration happens exactly once per process).
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	StreamBytesTotal *prometheus.CounterVec
	StreamChunks     *prometheus.CounterVec
	StreamTTFB       *prometheus.HistogramVec

	CredentialFailures *prometheus.CounterVec
	CredentialHealth   *prometheus.GaugeVec

	ProviderSwitches *prometheus.CounterVec

	TokensUsed *prometheus.CounterVec

	FlowsActive *prometheus.GaugeVec
}

// NewCollector registers every instrument under namespace (e.g.
// "proxycast") and returns the Collector. Call once per process.
func NewCollector(namespace string) *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of ingress requests handled, by protocol/provider/status.",
		}, []string{"protocol", "provider", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Ingress request duration in seconds, by protocol/provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol", "provider"}),

		StreamBytesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_total",
			Help:      "Total upstream bytes observed while streaming, by provider.",
		}, []string{"provider"}),

		StreamChunks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total upstream chunks observed while streaming, by provider.",
		}, []string{"provider"}),

		StreamTTFB: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_ttfb_seconds",
			Help:      "Time to first byte for streaming responses, by provider.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),

		CredentialFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_failures_total",
			Help:      "Total credential dispatch failures, by provider/kind.",
		}, []string{"provider"}),

		CredentialHealth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "credential_healthy",
			Help:      "1 if the credential is Active, 0 if Unhealthy.",
		}, []string{"provider", "credential_id"}),

		ProviderSwitches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_switches_total",
			Help:      "Total credential/provider failovers, by from/to/failure_type.",
		}, []string{"from", "to", "failure_type"}),

		TokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_used_total",
			Help:      "Total prompt/completion tokens consumed, by provider/kind.",
		}, []string{"provider", "kind"}),

		FlowsActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flows_active",
			Help:      "Number of in-flight (pending/streaming) flows, by state.",
		}, []string{"state"}),
	}
}
