package reviewlens

import (
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/reviewlens/reviewlens/models"
)

// Flag labels are part of the caller-visible contract; consumers match on
// the exact strings.
const (
	flagMarketingPhrases     = "contains common marketing phrases"
	flagBriefHighRating      = "very brief review with high rating"
	flagUnverifiedHighRating = "high rating without verified purchase"
)

// marketingPhrases are generic superlatives that show up far more often in
// planted reviews than in organic ones.
var marketingPhrases = []string{
	"amazing",
	"perfect",
	"best ever",
	"life-changing",
	"game changer",
	"incredible",
	"must buy",
	"changed my life",
}

// suspicionRule is one entry in the detector's rule table.
type suspicionRule struct {
	label string
	match func(r *models.Review) bool
}

// suspicionRules is the fixed rule table applied to every extracted review.
// Rules are evaluated independently, so a review can accumulate several
// flags. Tuning happens here, not in extraction or scoring code.
var suspicionRules = []suspicionRule{
	{
		label: flagMarketingPhrases,
		match: func(r *models.Review) bool {
			text := foldForMatch(r.Title + " " + r.Content)
			for _, phrase := range marketingPhrases {
				if strings.Contains(text, phrase) {
					return true
				}
			}
			return false
		},
	},
	{
		label: flagBriefHighRating,
		match: func(r *models.Review) bool {
			return len(r.Content) < 50 && r.Rating >= 4
		},
	},
	{
		label: flagUnverifiedHighRating,
		match: func(r *models.Review) bool {
			return !r.Verified && r.Rating >= 4
		},
	},
}

// detectSuspiciousPatterns runs every rule against the review and returns
// the labels that matched, in table order.
func detectSuspiciousPatterns(r *models.Review) []string {
	flags := []string{}
	for _, rule := range suspicionRules {
		if rule.match(r) {
			flags = append(flags, rule.label)
		}
	}
	return flags
}

// foldForMatch lowercases and strips diacritics so phrase matching is not
// defeated by decorative accents
func foldForMatch(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// isMn checks if a rune is a nonspacing mark (accents, diacritics)
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
