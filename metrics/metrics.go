package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the pipeline's instrumentation behind one scrape handler.
type Registry struct {
	reg *prometheus.Registry

	AnalyzeRequests  *prometheus.CounterVec
	AnalyzeDuration  prometheus.Histogram
	CacheHits        prometheus.Counter
	FetchBlocked     prometheus.Counter
	ReviewsExtracted prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	analyzeRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewlens_analyze_requests_total",
		Help: "Analysis requests by terminal outcome.",
	}, []string{"outcome"})
	analyzeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reviewlens_analyze_duration_seconds",
		Help:    "End-to-end analysis latency.",
		Buckets: prometheus.DefBuckets,
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewlens_cache_hits_total",
		Help: "Requests served from the result cache.",
	})
	fetchBlocked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewlens_fetch_blocked_total",
		Help: "Fetch attempts classified as bot-blocked.",
	})
	reviewsExtracted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewlens_reviews_extracted_total",
		Help: "Valid review records extracted across all scrapes.",
	})

	r.MustRegister(analyzeRequests, analyzeDuration, cacheHits, fetchBlocked, reviewsExtracted)
	return &Registry{
		reg:              r,
		AnalyzeRequests:  analyzeRequests,
		AnalyzeDuration:  analyzeDuration,
		CacheHits:        cacheHits,
		FetchBlocked:     fetchBlocked,
		ReviewsExtracted: reviewsExtracted,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
