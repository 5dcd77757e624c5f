// Package asin parses and validates marketplace product references.
//
// A reference is either a product page URL on an accepted marketplace host
// or a bare 10-character catalog identifier. Parsing never touches the
// network; callers reject invalid references before any fetch happens.
package asin

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalid is returned when a reference contains no extractable product identifier.
var ErrInvalid = errors.New("invalid product reference")

var (
	tokenRe = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	hostRe  = regexp.MustCompile(`(^|\.)amazon\.[a-z]{2,3}(\.[a-z]{2})?$`)
	pathRe  = regexp.MustCompile(`(?i)/(?:dp|gp/product|gp/aw/d|product-reviews)/([A-Z0-9]{10})(?:[/?.]|$)`)
)

// Parse extracts the canonical product identifier from a reference string.
// Accepts product page URLs on amazon.* hosts and bare identifier tokens.
func Parse(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalid
	}

	if token := strings.ToUpper(ref); tokenRe.MatchString(token) {
		return token, nil
	}

	raw := ref
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalid
	}
	if !ValidHost(u.Hostname()) {
		return "", ErrInvalid
	}

	if m := pathRe.FindStringSubmatch(u.Path); m != nil {
		return strings.ToUpper(m[1]), nil
	}

	// Some share links carry the identifier as a query parameter instead.
	if token := strings.ToUpper(u.Query().Get("asin")); tokenRe.MatchString(token) {
		return token, nil
	}

	return "", ErrInvalid
}

// IsValid reports whether s is a well-formed product identifier token.
func IsValid(s string) bool {
	return tokenRe.MatchString(strings.ToUpper(s))
}

// ValidHost reports whether host belongs to an accepted marketplace domain.
func ValidHost(host string) bool {
	return hostRe.MatchString(strings.ToLower(host))
}

// ProductURL builds the canonical product page URL for an identifier.
func ProductURL(domain, id string) string {
	return "https://" + domain + "/dp/" + id
}

// ReviewsURL builds the review listing URL for an identifier.
func ReviewsURL(domain, id string) string {
	return "https://" + domain + "/product-reviews/" + id
}
