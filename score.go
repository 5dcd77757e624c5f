package reviewlens

import (
	"math"
	"sort"

	"github.com/reviewlens/reviewlens/models"
)

// Scoring weights. The base assumes nothing; flags and the verification
// signal move it down, engagement and substance move it up.
const (
	scoreBase         = 75
	flagPenalty       = 10
	verifiedBonus     = 15
	unverifiedPenalty = 10
	votesBonusCap     = 10
	lengthBonusCap    = 15
)

// scoreReview computes the per-review authenticity score from the review's
// suspicion flags and metadata. The result is always within [0,100].
func scoreReview(r *models.Review) int {
	score := scoreBase

	score -= flagPenalty * len(r.SuspiciousPatterns)

	if r.Verified {
		score += verifiedBonus
	} else {
		score -= unverifiedPenalty
	}

	score += min(r.HelpfulVotes*2, votesBonusCap)
	score += min(len(r.Content)/10, lengthBonusCap)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// buildAnalysis derives the aggregate assessment from a scored batch.
// The batch is assumed non-empty; the pipeline reports ErrNoReviews before
// scoring an empty one.
func buildAnalysis(reviews []models.Review) models.Analysis {
	analysis := models.Analysis{
		TotalReviews:             len(reviews),
		RatingDistribution:       map[int]int{},
		CommonSuspiciousPatterns: []models.PatternCount{},
	}
	if len(reviews) == 0 {
		return analysis
	}

	scoreSum := 0
	verified := 0
	patternCounts := map[string]int{}
	for i := range reviews {
		r := &reviews[i]
		scoreSum += r.AuthenticityScore
		if r.Verified {
			verified++
		}
		star := int(r.Rating) // floored star bucket
		if star < 1 {
			star = 1
		} else if star > 5 {
			star = 5
		}
		analysis.RatingDistribution[star]++
		for _, p := range r.SuspiciousPatterns {
			patternCounts[p]++
		}
	}

	analysis.OverallAuthenticityScore = int(math.Round(float64(scoreSum) / float64(len(reviews))))
	analysis.VerifiedCount = verified
	analysis.VerificationRate = int(math.Round(float64(verified) / float64(len(reviews)) * 100))
	analysis.CommonSuspiciousPatterns = topPatterns(patternCounts, 5)
	analysis.Verdict = verdictFor(analysis.OverallAuthenticityScore)
	return analysis
}

// topPatterns returns the n most frequent flags, descending by count with
// ties broken by label so output ordering is deterministic.
func topPatterns(counts map[string]int, n int) []models.PatternCount {
	patterns := make([]models.PatternCount, 0, len(counts))
	for pattern, count := range counts {
		patterns = append(patterns, models.PatternCount{Pattern: pattern, Count: count})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].Pattern < patterns[j].Pattern
	})
	if len(patterns) > n {
		patterns = patterns[:n]
	}
	return patterns
}

// verdictFor maps an aggregate score onto its verdict label
func verdictFor(score int) string {
	switch {
	case score >= 80:
		return models.VerdictLikelyAuthentic
	case score >= 60:
		return models.VerdictMixedSignals
	case score >= 40:
		return models.VerdictLikelyManipulated
	default:
		return models.VerdictHighlySuspicious
	}
}
