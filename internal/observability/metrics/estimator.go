package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/collision-estimator/internal/core/domain"
)

// EstimatorMetrics records pipeline and index measurements. It implements the
// estimate and index observer ports.
type EstimatorMetrics struct {
	service string

	estimatesTotal    *prometheus.CounterVec
	estimateDuration  *prometheus.HistogramVec
	retrievalHitTotal prometheus.Counter
	noContextTotal    prometheus.Counter
	retrievalDegraded prometheus.Counter
	retrievedSources  prometheus.Histogram
	retrievalDuration prometheus.Histogram
	rateLookupsTotal  *prometheus.CounterVec
	llmTokensTotal    *prometheus.CounterVec
	rebuildsTotal     *prometheus.CounterVec
	rebuildDuration   prometheus.Histogram
	indexSegments     prometheus.Gauge
	indexDocuments    prometheus.Gauge
	indexGeneration   prometheus.Gauge
	reindexTriggers   *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewEstimatorMetrics(service string, registry prometheus.Registerer) *EstimatorMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &EstimatorMetrics{
		service: service,
		estimatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "estimate", Name: "requests_total",
			Help: "Estimate requests by outcome and intent.", ConstLabels: constLabels,
		}, []string{"outcome", "intent"}),
		estimateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "estimate", Name: "duration_seconds",
			Help: "End-to-end estimate duration.", ConstLabels: constLabels,
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		retrievalHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "retrieval_hit_total",
			Help: "Retrievals with at least one source.", ConstLabels: constLabels,
		}),
		noContextTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "no_context_total",
			Help: "Retrievals that produced no context.", ConstLabels: constLabels,
		}),
		retrievalDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "retrieval_degraded_total",
			Help: "Retrievals that failed and fell back to empty context.", ConstLabels: constLabels,
		}),
		retrievedSources: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "retrieved_sources",
			Help: "Distinct source documents per retrieval.", ConstLabels: constLabels,
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		}),
		retrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "retrieval_duration_seconds",
			Help: "Retrieval duration including query embedding.", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}),
		rateLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rate", Name: "lookups_total",
			Help: "Exchange rate lookups by currency and whether the fallback was used.", ConstLabels: constLabels,
		}, []string{"currency", "degraded"}),
		llmTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
			Help: "Token usage reported by the model provider.", ConstLabels: constLabels,
		}, []string{"direction", "model"}),
		rebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "index", Name: "rebuilds_total",
			Help: "Index rebuilds by outcome.", ConstLabels: constLabels,
		}, []string{"outcome"}),
		rebuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "index", Name: "rebuild_duration_seconds",
			Help: "Index rebuild duration.", ConstLabels: constLabels,
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		indexSegments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "index", Name: "segments",
			Help: "Segments in the serving index generation.", ConstLabels: constLabels,
		}),
		indexDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "index", Name: "documents",
			Help: "Documents in the serving index generation.", ConstLabels: constLabels,
		}),
		indexGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "index", Name: "generation",
			Help: "Serving index generation number.", ConstLabels: constLabels,
		}),
		reindexTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "index", Name: "reindex_triggers_total",
			Help: "Re-index triggers by origin.", ConstLabels: constLabels,
		}, []string{"origin"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "resilience", Name: "breaker_state",
			Help: "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).", ConstLabels: constLabels,
		}, []string{"operation"}),
	}

	registry.MustRegister(
		m.estimatesTotal,
		m.estimateDuration,
		m.retrievalHitTotal,
		m.noContextTotal,
		m.retrievalDegraded,
		m.retrievedSources,
		m.retrievalDuration,
		m.rateLookupsTotal,
		m.llmTokensTotal,
		m.rebuildsTotal,
		m.rebuildDuration,
		m.indexSegments,
		m.indexDocuments,
		m.indexGeneration,
		m.reindexTriggers,
		m.breakerState,
	)
	return m
}

func (m *EstimatorMetrics) ObserveEstimate(outcome string, intent domain.Intent, duration time.Duration) {
	if intent == "" {
		intent = "unknown"
	}
	m.estimatesTotal.WithLabelValues(outcome, string(intent)).Inc()
	m.estimateDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *EstimatorMetrics) ObserveRetrieval(sourceCount int, degraded bool, duration time.Duration) {
	m.retrievedSources.Observe(float64(sourceCount))
	m.retrievalDuration.Observe(duration.Seconds())
	if degraded {
		m.retrievalDegraded.Inc()
	}
	if sourceCount > 0 {
		m.retrievalHitTotal.Inc()
		return
	}
	m.noContextTotal.Inc()
}

func (m *EstimatorMetrics) ObserveRate(currency string, degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	m.rateLookupsTotal.WithLabelValues(currency, label).Inc()
}

func (m *EstimatorMetrics) ObserveTokens(model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues("in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues("out", model).Add(float64(completionTokens))
	}
}

func (m *EstimatorMetrics) ObserveRebuild(outcome string, duration time.Duration, status domain.IndexStatus) {
	m.rebuildsTotal.WithLabelValues(outcome).Inc()
	m.rebuildDuration.Observe(duration.Seconds())
	if outcome == "error" {
		return
	}
	m.indexSegments.Set(float64(status.Segments))
	m.indexDocuments.Set(float64(status.Documents))
	m.indexGeneration.Set(float64(status.Generation))
}

func (m *EstimatorMetrics) RecordReindexTrigger(origin string) {
	m.reindexTriggers.WithLabelValues(origin).Inc()
}

// RecordBreakerState matches resilience.StateListener.
func (m *EstimatorMetrics) RecordBreakerState(operation string, state gobreaker.State) {
	value := 0.0
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(operation).Set(value)
}
