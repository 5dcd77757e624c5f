package reviewlens

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/reviewlens/reviewlens/asin"
	"github.com/reviewlens/reviewlens/models"
)

const (
	maxCandidateBlocks    = 20
	maxBatchSize          = 10
	minValidContentLength = 10
	contentPreviewLength  = 200
	truncationMarker      = "..."
	unknownDate           = "Unknown"

	maxProductImages = 6
	maxProductVideos = 4
)

// containerStrategy locates candidate review blocks in the document.
type containerStrategy struct {
	name     string
	selector string
}

// containerStrategies are tried in order; the first one that matches at all
// wins. Tolerance to markup drift comes from adding a strategy here, not
// from making any single one smarter.
var containerStrategies = []containerStrategy{
	{name: "review-hook", selector: `div[data-hook="review"]`},
	{name: "customer-review-id", selector: `div[id^="customer_review"]`},
	{name: "review-class", selector: `div[class*="review-item"], li[class*="review"]`},
	{name: "generic-article", selector: `article, section[class*="review"]`},
}

// Field-level cascades. Each field is extracted independently so drift in
// one field's markup does not take the others down with it.
var (
	authorSelectors = []string{
		"span.a-profile-name",
		`[class*="profile-name"]`,
		`[class*="author"]`,
		`[class*="byline"]`,
	}
	titleSelectors = []string{
		`a[data-hook="review-title"] > span:last-child`,
		`[data-hook="review-title"]`,
		`[class*="review-title"]`,
		"strong",
	}
	contentSelectors = []string{
		`span[data-hook="review-body"]`,
		`[class*="review-text"]`,
		`[class*="review-body"]`,
		`[class*="content"]`,
	}
	dateSelectors = []string{
		`span[data-hook="review-date"]`,
		`[class*="review-date"]`,
		`[class*="date"]`,
	}
	ratingSelectors = []string{
		`i[data-hook="review-star-rating"] span.a-icon-alt`,
		`[data-hook="review-star-rating"]`,
		"span.a-icon-alt",
		`[class*="rating"]`,
	}
	helpfulSelectors = []string{
		`span[data-hook="helpful-vote-statement"]`,
		`[class*="helpful"]`,
	}
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	ratingOutOfRe  = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*out of\s*5`)
	starClassRe    = regexp.MustCompile(`a-star(?:-small)?-([0-9])(?:-([0-9]))?`)
	starPrefixRe   = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?\s+out of 5 stars\s*`)
	helpfulVotesRe = regexp.MustCompile(`(?i)([0-9][0-9,]*)\s+(?:people|person)\s+found\s+this\s+helpful`)
	helpfulOneRe   = regexp.MustCompile(`(?i)\bone person found this helpful\b`)
	reviewedOnRe   = regexp.MustCompile(`(?i)^reviewed in .+? on (.+)$`)
)

// extraction is the parsed outcome of one fetched document.
type extraction struct {
	Reviews       []models.Review
	ProductTitle  string
	ProductImages []string
	ProductVideos []string
}

// extractDocument parses the fetched page and pulls structured reviews plus
// product side data out of it.
func extractDocument(body, productID, domain string) (*extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	return &extraction{
		Reviews:       extractReviews(doc, productID, domain),
		ProductTitle:  extractProductTitle(doc),
		ProductImages: extractProductImages(doc),
		ProductVideos: extractProductVideos(doc),
	}, nil
}

// extractReviews walks candidate blocks and keeps the ones that pass the
// validity gate, capped at maxBatchSize records.
func extractReviews(doc *goquery.Document, productID, domain string) []models.Review {
	reviews := []models.Review{}
	for _, block := range findReviewBlocks(doc) {
		review, ok := extractReview(block, productID, domain)
		if !ok {
			continue
		}
		reviews = append(reviews, review)
		if len(reviews) >= maxBatchSize {
			break
		}
	}
	return reviews
}

// findReviewBlocks applies container strategies in order and returns the
// first non-empty match set, bounded at maxCandidateBlocks.
func findReviewBlocks(doc *goquery.Document) []*goquery.Selection {
	for _, strategy := range containerStrategies {
		sel := doc.Find(strategy.selector)
		if sel.Length() == 0 {
			continue
		}
		blocks := make([]*goquery.Selection, 0, min(sel.Length(), maxCandidateBlocks))
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(blocks) >= maxCandidateBlocks {
				return false
			}
			blocks = append(blocks, s)
			return true
		})
		return blocks
	}
	return nil
}

// extractReview pulls one candidate block apart field by field. Candidates
// missing a required field are dropped silently; partial extraction is the
// expected case, not an error.
func extractReview(block *goquery.Selection, productID, domain string) (models.Review, bool) {
	review := models.Review{
		ID:       uuid.New().String(),
		Author:   firstMatchText(block, authorSelectors),
		Rating:   extractRating(block),
		Title:    cleanTitle(firstMatchText(block, titleSelectors)),
		Date:     extractDate(block),
		Verified: extractVerified(block),
	}
	if native, ok := nativeReviewID(block); ok {
		review.ID = native
	}
	review.HelpfulVotes = extractHelpfulVotes(block)
	review.Link = reviewLink(block, productID, domain)

	content := firstMatchText(block, contentSelectors)
	if review.Author == "" || review.Rating == 0 || review.Title == "" ||
		content == "" || len(content) <= minValidContentLength {
		return models.Review{}, false
	}
	review.Content = truncateContent(content)
	return review, true
}

// firstMatchText returns the normalized text of the first selector in the
// cascade that yields a non-empty value inside the block.
func firstMatchText(block *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := normalizeText(block.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// extractRating resolves the star rating from visible text, icon alt text,
// or star class names, in that order. Returns 0 when nothing parses.
func extractRating(block *goquery.Selection) float64 {
	for _, sel := range ratingSelectors {
		if rating := parseRating(block.Find(sel).First().Text()); rating > 0 {
			return rating
		}
	}

	if class, ok := block.Find(`i[class*="a-star"]`).First().Attr("class"); ok {
		if m := starClassRe.FindStringSubmatch(class); m != nil {
			whole, _ := strconv.Atoi(m[1])
			rating := float64(whole)
			if m[2] != "" {
				frac, _ := strconv.Atoi(m[2])
				rating += float64(frac) / 10
			}
			if rating >= 1 && rating <= 5 {
				return rating
			}
		}
	}

	return parseRating(block.Text())
}

// parseRating extracts a 1.0-5.0 star value from "N out of 5" phrasing.
func parseRating(text string) float64 {
	m := ratingOutOfRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	rating, err := strconv.ParseFloat(m[1], 64)
	if err != nil || rating < 1 || rating > 5 {
		return 0
	}
	return rating
}

// extractDate prefers the explicit review date and strips the "Reviewed in
// <region> on" preamble when present.
func extractDate(block *goquery.Selection) string {
	raw := firstMatchText(block, dateSelectors)
	if raw == "" {
		return unknownDate
	}
	if m := reviewedOnRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return raw
}

// extractVerified checks the purchase badge, falling back to a text match.
func extractVerified(block *goquery.Selection) bool {
	if block.Find(`span[data-hook="avp-badge"]`).Length() > 0 {
		return true
	}
	return strings.Contains(strings.ToLower(block.Text()), "verified purchase")
}

// extractHelpfulVotes parses "N people found this helpful" phrasing,
// including the "One person" singular form.
func extractHelpfulVotes(block *goquery.Selection) int {
	for _, sel := range helpfulSelectors {
		if votes, ok := parseHelpfulVotes(block.Find(sel).First().Text()); ok {
			return votes
		}
	}
	if votes, ok := parseHelpfulVotes(block.Text()); ok {
		return votes
	}
	return 0
}

func parseHelpfulVotes(text string) (int, bool) {
	if m := helpfulVotesRe.FindStringSubmatch(text); m != nil {
		votes, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil || votes < 0 {
			return 0, false
		}
		return votes, true
	}
	if helpfulOneRe.MatchString(text) {
		return 1, true
	}
	return 0, false
}

// nativeReviewID recovers the source's own review identifier when the block
// carries one.
func nativeReviewID(block *goquery.Selection) (string, bool) {
	id, ok := block.Attr("id")
	if !ok {
		return "", false
	}
	if rest, found := strings.CutPrefix(id, "customer_review-"); found && rest != "" {
		return rest, true
	}
	return "", false
}

// reviewLink builds a permalink from the native review id, or synthesizes a
// listing-page link when the source hides per-review permalinks.
func reviewLink(block *goquery.Selection, productID, domain string) string {
	if id, ok := nativeReviewID(block); ok {
		return "https://" + domain + "/gp/customer-reviews/" + id
	}
	return asin.ReviewsURL(domain, productID)
}

// extractProductTitle resolves the product name in priority order:
// og:title, the product title element, the first h1, the document title.
func extractProductTitle(doc *goquery.Document) string {
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if normalized := normalizeText(title); normalized != "" {
			return normalized
		}
	}
	if title := normalizeText(doc.Find("#productTitle").First().Text()); title != "" {
		return title
	}
	if title := normalizeText(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	return normalizeText(doc.Find("title").First().Text())
}

// extractProductImages collects distinct product image URLs from the dynamic
// image manifest, hi-res attributes, and open graph metadata.
func extractProductImages(doc *goquery.Document) []string {
	images := []string{}
	seen := map[string]bool{}
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "data:") || seen[raw] || len(images) >= maxProductImages {
			return
		}
		seen[raw] = true
		images = append(images, raw)
	}

	if data, ok := doc.Find("#landingImage").Attr("data-a-dynamic-image"); ok {
		var sizes map[string]any
		if err := json.Unmarshal([]byte(data), &sizes); err == nil {
			urls := make([]string, 0, len(sizes))
			for u := range sizes {
				urls = append(urls, u)
			}
			sort.Strings(urls) // map iteration order would leak into the payload
			for _, u := range urls {
				add(u)
			}
		}
	}
	doc.Find("img[data-old-hires]").Each(func(_ int, s *goquery.Selection) {
		if hires, ok := s.Attr("data-old-hires"); ok {
			add(hires)
		}
	})
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		add(og)
	}
	return images
}

// extractProductVideos collects distinct product video URLs.
func extractProductVideos(doc *goquery.Document) []string {
	videos := []string{}
	seen := map[string]bool{}
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || seen[raw] || len(videos) >= maxProductVideos {
			return
		}
		seen[raw] = true
		videos = append(videos, raw)
	}

	doc.Find("[data-video-url]").Each(func(_ int, s *goquery.Selection) {
		if u, ok := s.Attr("data-video-url"); ok {
			add(u)
		}
	})
	doc.Find("video source[src], video[src]").Each(func(_ int, s *goquery.Selection) {
		if u, ok := s.Attr("src"); ok {
			add(u)
		}
	})
	if og, ok := doc.Find(`meta[property="og:video"]`).Attr("content"); ok {
		add(og)
	}
	return videos
}

// cleanTitle drops a leaked star-rating prefix from title text.
func cleanTitle(s string) string {
	return strings.TrimSpace(starPrefixRe.ReplaceAllString(s, ""))
}

// normalizeText collapses the whitespace left behind by markup removal.
// Non-breaking spaces from entity decoding are folded into plain spaces.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// truncateContent bounds the stored review text to a preview snippet.
func truncateContent(s string) string {
	runes := []rune(s)
	if len(runes) <= contentPreviewLength {
		return s
	}
	return strings.TrimSpace(string(runes[:contentPreviewLength])) + truncationMarker
}
