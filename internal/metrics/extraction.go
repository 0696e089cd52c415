package metrics

import "github.com/prometheus/client_golang/prometheus"

// Extraction and embedding Prometheus metrics.
var (
	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "model_requests_total",
			Help:      "Total number of extraction model requests",
		},
		[]string{"provider", "model", "status"},
	)

	ModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uwia",
			Name:      "model_request_duration_seconds",
			Help:      "Extraction model request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	ModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "model_tokens_total",
			Help:      "Total extraction model tokens consumed",
		},
		[]string{"provider", "model"},
	)

	ConsensusAgreement = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "uwia",
			Name:      "consensus_agreement",
			Help:      "Agreement score distribution across dual-model field extractions",
			Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.75, 0.8, 0.9, 0.95, 1},
		},
	)

	JudgeInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "judge_invocations_total",
			Help:      "Total arbitration passes by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	StrategySelectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "strategy_selected_total",
			Help:      "Documents routed per processing strategy",
		},
		[]string{"strategy"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uwia",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uwia",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uwia",
			Name:      "sessions_active",
			Help:      "Processing sessions currently alive",
		},
	)
)

// RegisterExtractionMetrics registers all extraction metrics explicitly (no init()).
func RegisterExtractionMetrics() {
	prometheus.MustRegister(
		ModelRequestsTotal,
		ModelRequestDuration,
		ModelTokensTotal,
		ConsensusAgreement,
		JudgeInvocationsTotal,
		StrategySelectedTotal,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingCacheTotal,
		SessionsActive,
	)
}
