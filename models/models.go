package models

import "time"

// Verdict labels derived from the overall authenticity score. Thresholds and
// strings are a fixed contract; downstream consumers match on them exactly.
const (
	VerdictLikelyAuthentic   = "Likely Authentic"   // score >= 80
	VerdictMixedSignals      = "Mixed Signals"      // 60-79
	VerdictLikelyManipulated = "Likely Manipulated" // 40-59
	VerdictHighlySuspicious  = "Highly Suspicious"  // below 40
)

// Review represents a single extracted product review
type Review struct {
	ID                 string   `json:"id"`
	Author             string   `json:"author"`
	Rating             float64  `json:"rating"` // 1.0 to 5.0, fractional allowed
	Title              string   `json:"title"`
	Content            string   `json:"content"` // truncated preview, not the full review text
	Date               string   `json:"date"`
	Verified           bool     `json:"verified"`
	HelpfulVotes       int      `json:"helpfulVotes"`
	Link               string   `json:"link"`
	SuspiciousPatterns []string `json:"suspiciousPatterns"`
	AuthenticityScore  int      `json:"authenticityScore"` // 0 to 100
}

// PatternCount pairs a suspicion flag with its occurrence count across a batch
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// Analysis represents the aggregate authenticity assessment of a review batch
type Analysis struct {
	OverallAuthenticityScore int            `json:"overallAuthenticityScore"` // rounded mean of per-review scores
	TotalReviews             int            `json:"totalReviews"`
	VerifiedCount            int            `json:"verifiedCount"`
	VerificationRate         int            `json:"verificationRate"` // rounded percentage
	RatingDistribution       map[int]int    `json:"ratingDistribution"`
	CommonSuspiciousPatterns []PatternCount `json:"commonSuspiciousPatterns"`
	Verdict                  string         `json:"verdict"`
}

// ProductAnalysis represents the complete persisted result of one scrape,
// keyed by ASIN and bounded by a freshness window
type ProductAnalysis struct {
	ASIN          string    `json:"asin"`
	ProductTitle  string    `json:"productTitle"`
	ProductImages []string  `json:"productImages"`
	ProductVideos []string  `json:"productVideos"`
	Reviews       []Review  `json:"reviews"`
	Analysis      Analysis  `json:"analysis"`
	TotalReviews  int       `json:"totalReviews"`
	ScrapedAt     time.Time `json:"scrapedAt"`
	ExpiresAt     time.Time `json:"expiresAt"` // ScrapedAt + cache TTL
}

// Expired reports whether the entry has passed its freshness window at now
func (p *ProductAnalysis) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// AnalyzeResult is the success envelope returned to callers
type AnalyzeResult struct {
	Success       bool     `json:"success"`
	ProductID     string   `json:"productId"`
	TotalReviews  int      `json:"totalReviews"`
	Analysis      Analysis `json:"analysis"`
	Reviews       []Review `json:"reviews"` // capped at 10
	ProductVideos []string `json:"productVideos"`
	ProductImages []string `json:"productImages"`
	ProductTitle  string   `json:"productTitle"`
	FromCache     bool     `json:"fromCache"`
}

// AnalyzeFailure is the soft-failure envelope: the request itself succeeded,
// the payload reports why no analysis is available
type AnalyzeFailure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	IsBlocked bool   `json:"isBlocked"`
}

// AnalyzeRequest represents a request to analyze a product's reviews
type AnalyzeRequest struct {
	URL  string `json:"url,omitempty"`
	ASIN string `json:"asin,omitempty"`
}

// FromEntry builds a success envelope from a persisted entry
func FromEntry(entry *ProductAnalysis, fromCache bool) *AnalyzeResult {
	return &AnalyzeResult{
		Success:       true,
		ProductID:     entry.ASIN,
		TotalReviews:  entry.TotalReviews,
		Analysis:      entry.Analysis,
		Reviews:       entry.Reviews,
		ProductVideos: entry.ProductVideos,
		ProductImages: entry.ProductImages,
		ProductTitle:  entry.ProductTitle,
		FromCache:     fromCache,
	}
}
