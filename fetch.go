package reviewlens

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// headerProfile is the browser identity presented on outbound requests.
type headerProfile struct {
	userAgent      string
	accept         string
	acceptLanguage string
}

var (
	desktopProfile = headerProfile{
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		acceptLanguage: "en-US,en;q=0.9",
	}
	mobileProfile = headerProfile{
		userAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_3 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Mobile/15E148 Safari/604.1",
		accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		acceptLanguage: "en-US,en;q=0.9",
	}
)

// fetcher issues single paced GET requests. It carries no retry policy;
// retries live in the orchestrator.
type fetcher struct {
	client       *http.Client
	limiter      *rate.Limiter
	maxBodyBytes int64
}

func newFetcher(requestsPerMinute int, maxBodyBytes int64) *fetcher {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 20
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 5 << 20
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &fetcher{
		client:       &http.Client{Transport: transport},
		limiter:      rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		maxBodyBytes: maxBodyBytes,
	}
}

// fetch performs one GET with the given header profile and wait budget,
// returning the decoded body. Any transport failure or non-2xx status is a
// network error to the caller.
func (f *fetcher) fetch(ctx context.Context, targetURL string, profile headerProfile, timeout time.Duration) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("request pacing interrupted: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", profile.userAgent)
	req.Header.Set("Accept", profile.accept)
	req.Header.Set("Accept-Language", profile.acceptLanguage)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d fetching %s", resp.StatusCode, targetURL)
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("bad gzip body: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	body = io.LimitReader(body, f.maxBodyBytes)

	// Fold whatever charset the marketplace serves into UTF-8 before parsing.
	decoded, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("charset detection failed: %w", err)
	}

	raw, err := io.ReadAll(decoded)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(raw), nil
}

// blockSignatures are case-insensitive markers of challenge pages. The form
// action and input id Amazon uses for its captcha page appear verbatim in
// the raw markup, so plain substring checks cover the structural cases too.
var blockSignatures = []string{
	"robot check",
	"captcha",
	"not a robot",
	"automated access",
	"enter the characters you see",
	"type the characters you see",
}

const minPlausibleBodyLength = 1000

// classifyBlock reports whether the body looks like an anti-automation
// challenge rather than a listing page, with the matched reason. High recall
// beats precision here: a false positive degrades to a soft failure, never
// to bad data.
func classifyBlock(body string) (bool, string) {
	if len(body) < minPlausibleBodyLength {
		return true, fmt.Sprintf("body too short for a listing page (%d bytes)", len(body))
	}
	lower := strings.ToLower(body)
	for _, sig := range blockSignatures {
		if strings.Contains(lower, sig) {
			return true, "challenge signature: " + sig
		}
	}
	return false, ""
}
