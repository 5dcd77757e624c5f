package reviewlens

import (
	"reflect"
	"testing"

	"github.com/reviewlens/reviewlens/models"
)

func TestDetectSuspiciousPatterns(t *testing.T) {
	// Long enough to stay clear of the brevity rule.
	longNeutral := "The stitching came loose after about three weeks of light use, though the zipper still works fine and the color has not faded at all."

	tests := []struct {
		name     string
		review   models.Review
		expected []string
	}{
		{
			name: "clean verified review",
			review: models.Review{
				Title:    "Does the job",
				Content:  longNeutral,
				Rating:   4,
				Verified: true,
			},
			expected: []string{},
		},
		{
			name: "marketing phrase in content",
			review: models.Review{
				Title:    "Solid purchase",
				Content:  "This is a game changer for my morning routine, I reach for it before anything else in the kitchen.",
				Rating:   5,
				Verified: true,
			},
			expected: []string{flagMarketingPhrases},
		},
		{
			name: "marketing phrase in title only",
			review: models.Review{
				Title:    "Absolutely perfect",
				Content:  longNeutral,
				Rating:   5,
				Verified: true,
			},
			expected: []string{flagMarketingPhrases},
		},
		{
			name: "accented superlative still matches",
			review: models.Review{
				Title:    "Amàzing quality",
				Content:  longNeutral,
				Rating:   5,
				Verified: true,
			},
			expected: []string{flagMarketingPhrases},
		},
		{
			name: "brief high rated review",
			review: models.Review{
				Title:    "Nice",
				Content:  "Works well so far, no issues.",
				Rating:   4,
				Verified: true,
			},
			expected: []string{flagBriefHighRating},
		},
		{
			name: "brief but low rated",
			review: models.Review{
				Title:    "Meh",
				Content:  "Broke within the first week.",
				Rating:   2,
				Verified: true,
			},
			expected: []string{},
		},
		{
			name: "exactly fifty chars is not brief",
			review: models.Review{
				Title:    "Fine",
				Content:  "12345678901234567890123456789012345678901234567890",
				Rating:   5,
				Verified: true,
			},
			expected: []string{},
		},
		{
			name: "unverified high rating",
			review: models.Review{
				Title:    "Great value",
				Content:  longNeutral,
				Rating:   4.5,
				Verified: false,
			},
			expected: []string{flagUnverifiedHighRating},
		},
		{
			name: "unverified but low rating",
			review: models.Review{
				Title:    "Disappointed",
				Content:  longNeutral,
				Rating:   2,
				Verified: false,
			},
			expected: []string{},
		},
		{
			name: "all three rules fire in table order",
			review: models.Review{
				Title:    "Best ever",
				Content:  "Amazing, just perfect!",
				Rating:   5,
				Verified: false,
			},
			expected: []string{flagMarketingPhrases, flagBriefHighRating, flagUnverifiedHighRating},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detectSuspiciousPatterns(&tt.review)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("detectSuspiciousPatterns() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestFoldForMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Amàzing", "amazing"},
		{"PERFEÇT", "perfect"},
		{"plain text", "plain text"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := foldForMatch(tt.input); got != tt.expected {
			t.Errorf("foldForMatch(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
