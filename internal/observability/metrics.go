package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	apiRequestsTotal          *prometheus.CounterVec
	apiLatencySeconds         *prometheus.HistogramVec
	apiErrorsTotal            *prometheus.CounterVec
	carnetSignaturesTotal     *prometheus.CounterVec
	carnetUnsignsTotal        *prometheus.CounterVec
	carnetPromotionsTotal     prometheus.Counter
	carnetReviewRequestsTotal prometheus.Counter
	carnetReviewCacheHits     prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carnet_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carnet_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carnet_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		carnetSignaturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carnet_signatures_total",
			Help: "Total number of carnet signatures recorded, by type.",
		}, []string{"type"})

		carnetUnsignsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carnet_unsigns_total",
			Help: "Total number of carnet signatures removed, by type.",
		}, []string{"type"})

		carnetPromotionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carnet_promotions_total",
			Help: "Total number of successful student promotions.",
		})

		carnetReviewRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carnet_review_requests_total",
			Help: "Total number of review views served.",
		})

		carnetReviewCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carnet_review_cache_hits_total",
			Help: "Total number of review views served from cache.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			carnetSignaturesTotal,
			carnetUnsignsTotal,
			carnetPromotionsTotal,
			carnetReviewRequestsTotal,
			carnetReviewCacheHits,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SignaturesTotal exposes the counter for recorded signatures.
func SignaturesTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return carnetSignaturesTotal
}

// UnsignsTotal exposes the counter for removed signatures.
func UnsignsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return carnetUnsignsTotal
}

// PromotionsTotal exposes the counter for successful promotions.
func PromotionsTotal() prometheus.Counter {
	RegisterMetrics()
	return carnetPromotionsTotal
}

// ReviewRequestsTotal exposes the counter for review views served.
func ReviewRequestsTotal() prometheus.Counter {
	RegisterMetrics()
	return carnetReviewRequestsTotal
}

// ReviewCacheHits exposes the counter for cached review views.
func ReviewCacheHits() prometheus.Counter {
	RegisterMetrics()
	return carnetReviewCacheHits
}
