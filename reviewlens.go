package reviewlens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/reviewlens/reviewlens/asin"
	"github.com/reviewlens/reviewlens/metrics"
	"github.com/reviewlens/reviewlens/models"
)

var (
	// ErrBlocked reports that anti-automation defenses stopped both attempts.
	ErrBlocked = errors.New("blocked by anti-automation defenses")
	// ErrNoReviews reports a fetched page that produced no valid records.
	ErrNoReviews = errors.New("no reviews could be extracted")
)

// Config contains pipeline configuration. Everything the pipeline needs is
// injected here; the package holds no global state.
type Config struct {
	Domain            string        // marketplace host, e.g. "www.amazon.com"
	BaseURL           string        // overrides the marketplace origin; for proxies and tests
	FetchTimeout      time.Duration // wait budget for the first attempt
	RetryFetchTimeout time.Duration // extended wait budget for the single retry
	RequestsPerMinute int           // outbound request pacing
	MaxBodyBytes      int64         // response read cap
	CacheTTL          time.Duration // freshness window for persisted results
}

// DefaultConfig returns default pipeline configuration
func DefaultConfig() Config {
	return Config{
		Domain:            "www.amazon.com",
		FetchTimeout:      20 * time.Second,
		RetryFetchTimeout: 35 * time.Second,
		RequestsPerMinute: 20,
		MaxBodyBytes:      5 << 20, // 5MB response cap
		CacheTTL:          24 * time.Hour,
	}
}

// Store is the keyed cache the pipeline reads through and writes back to.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*models.ProductAnalysis, bool, error)
	Put(ctx context.Context, entry *models.ProductAnalysis) error
}

// Archiver persists raw fetched pages for later audit.
type Archiver interface {
	SaveSnapshot(ctx context.Context, id string, body []byte, fetchedAt time.Time) (string, error)
}

// Publisher emits analysis lifecycle events to downstream consumers.
type Publisher interface {
	AnalysisCompleted(ctx context.Context, entry *models.ProductAnalysis) error
}

// Options carries the pipeline's optional collaborators. Any field may be
// nil to disable that integration.
type Options struct {
	Archiver Archiver
	Events   Publisher
	Metrics  *metrics.Registry
	Logger   *slog.Logger
}

// Service runs the review analysis pipeline: cache lookup, fetch, block
// classification, extraction, scoring, and cache write-back.
type Service struct {
	config  Config
	fetcher *fetcher
	store   Store
	archive Archiver
	events  Publisher
	metrics *metrics.Registry
	logger  *slog.Logger
	tracer  trace.Tracer
	flight  singleflight.Group
}

// New creates a Service backed by the given store.
func New(config Config, store Store, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		config:  config,
		fetcher: newFetcher(config.RequestsPerMinute, config.MaxBodyBytes),
		store:   store,
		archive: opts.Archiver,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  logger.With("component", "pipeline"),
		tracer:  otel.Tracer("reviewlens"),
	}
}

// Analyze resolves a product reference and returns its review authenticity
// assessment, serving from cache when a fresh entry exists. Concurrent calls
// for the same product share a single scrape.
func (s *Service) Analyze(ctx context.Context, ref string) (*models.AnalyzeResult, error) {
	productID, err := asin.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parsing product reference %q: %w", ref, err)
	}

	result, err, _ := s.flight.Do(productID, func() (any, error) {
		return s.analyze(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.AnalyzeResult), nil
}

func (s *Service) analyze(ctx context.Context, productID string) (*models.AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "analyze",
		trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	start := time.Now()

	if entry, ok := s.cacheLookup(ctx, productID); ok {
		s.logger.Info("serving cached analysis", "asin", productID, "age", time.Since(entry.ScrapedAt).Round(time.Second))
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		s.observe("cache_hit", start)
		return models.FromEntry(entry, true), nil
	}

	entry, err := s.scrape(ctx, productID)
	if err != nil {
		span.RecordError(err)
		s.observe(outcomeFor(err), start)
		return nil, err
	}

	if err := s.store.Put(ctx, entry); err != nil {
		// Non-fatal: the caller still gets the fresh result.
		s.logger.Warn("cache write failed", "asin", productID, "error", err)
	}

	s.publish(ctx, entry)
	s.observe("success", start)
	s.logger.Info("analysis complete", "asin", productID,
		"reviews", entry.TotalReviews,
		"score", entry.Analysis.OverallAuthenticityScore,
		"verdict", entry.Analysis.Verdict)
	return models.FromEntry(entry, false), nil
}

// cacheLookup returns a stored entry when one exists and is still fresh.
// Expired entries are ignored, not deleted; the next successful scrape
// overwrites them.
func (s *Service) cacheLookup(ctx context.Context, productID string) (*models.ProductAnalysis, bool) {
	entry, ok, err := s.store.Get(ctx, productID)
	if err != nil {
		s.logger.Warn("cache read failed", "asin", productID, "error", err)
		return nil, false
	}
	if !ok || entry.Expired(time.Now()) {
		return nil, false
	}
	return entry, true
}

// fetchParams is one attempt's request shape. The retry flips to an
// alternate sort order, header profile, and a longer wait budget.
type fetchParams struct {
	query   string
	profile headerProfile
	timeout time.Duration
}

func (s *Service) attempts() [2]fetchParams {
	return [2]fetchParams{
		{query: "?sortBy=helpful", profile: desktopProfile, timeout: s.config.FetchTimeout},
		{query: "?sortBy=recent&pageNumber=1", profile: mobileProfile, timeout: s.config.RetryFetchTimeout},
	}
}

// scrape drives fetch, block classification, and extraction, retrying once
// on a blocked or empty outcome. Transport failures are terminal.
func (s *Service) scrape(ctx context.Context, productID string) (*models.ProductAnalysis, error) {
	baseURL := s.reviewsURL(productID)

	var lastOutcome error
	for attempt, params := range s.attempts() {
		if attempt > 0 {
			s.logger.Info("retrying with adjusted parameters", "asin", productID, "query", params.query)
		}

		body, err := s.fetcher.fetch(ctx, baseURL+params.query, params.profile, params.timeout)
		if err != nil {
			return nil, fmt.Errorf("fetching reviews for %s: %w", productID, err)
		}

		if blocked, reason := classifyBlock(body); blocked {
			s.logger.Warn("fetch classified as blocked", "asin", productID, "attempt", attempt+1, "reason", reason)
			if s.metrics != nil {
				s.metrics.FetchBlocked.Inc()
			}
			lastOutcome = fmt.Errorf("%w: %s", ErrBlocked, reason)
			continue
		}

		extracted, err := extractDocument(body, productID, s.config.Domain)
		if err != nil {
			lastOutcome = fmt.Errorf("%w: unparseable document: %v", ErrNoReviews, err)
			continue
		}
		if len(extracted.Reviews) == 0 {
			s.logger.Warn("no valid reviews extracted", "asin", productID, "attempt", attempt+1)
			lastOutcome = ErrNoReviews
			continue
		}

		s.archiveSnapshot(ctx, productID, body)
		return s.assemble(productID, extracted), nil
	}

	return nil, lastOutcome
}

func (s *Service) reviewsURL(productID string) string {
	if s.config.BaseURL != "" {
		return s.config.BaseURL + "/product-reviews/" + productID
	}
	return asin.ReviewsURL(s.config.Domain, productID)
}

// assemble runs detection and scoring over the batch and builds the
// persistable entry.
func (s *Service) assemble(productID string, extracted *extraction) *models.ProductAnalysis {
	reviews := extracted.Reviews
	for i := range reviews {
		reviews[i].SuspiciousPatterns = detectSuspiciousPatterns(&reviews[i])
		reviews[i].AuthenticityScore = scoreReview(&reviews[i])
	}

	if s.metrics != nil {
		s.metrics.ReviewsExtracted.Add(float64(len(reviews)))
	}

	now := time.Now().UTC()
	return &models.ProductAnalysis{
		ASIN:          productID,
		ProductTitle:  extracted.ProductTitle,
		ProductImages: extracted.ProductImages,
		ProductVideos: extracted.ProductVideos,
		Reviews:       reviews,
		Analysis:      buildAnalysis(reviews),
		TotalReviews:  len(reviews),
		ScrapedAt:     now,
		ExpiresAt:     now.Add(s.config.CacheTTL),
	}
}

func (s *Service) archiveSnapshot(ctx context.Context, productID, body string) {
	if s.archive == nil {
		return
	}
	path, err := s.archive.SaveSnapshot(ctx, productID, []byte(body), time.Now().UTC())
	if err != nil {
		s.logger.Warn("snapshot archive failed", "asin", productID, "error", err)
		return
	}
	s.logger.Debug("snapshot archived", "asin", productID, "path", path)
}

func (s *Service) publish(ctx context.Context, entry *models.ProductAnalysis) {
	if s.events == nil {
		return
	}
	if err := s.events.AnalysisCompleted(ctx, entry); err != nil {
		s.logger.Warn("event publish failed", "asin", entry.ASIN, "error", err)
	}
}

func (s *Service) observe(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.AnalyzeRequests.WithLabelValues(outcome).Inc()
	s.metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
}

// outcomeFor buckets a pipeline error for metrics labels.
func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrNoReviews):
		return "no_reviews"
	case errors.Is(err, asin.ErrInvalid):
		return "invalid_input"
	default:
		return "network_error"
	}
}
