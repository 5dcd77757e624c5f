package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens"
	"github.com/reviewlens/reviewlens/asin"
	"github.com/reviewlens/reviewlens/metrics"
	"github.com/reviewlens/reviewlens/models"
	"github.com/reviewlens/reviewlens/store"
)

type analyzerFunc func(ctx context.Context, ref string) (*models.AnalyzeResult, error)

func (f analyzerFunc) Analyze(ctx context.Context, ref string) (*models.AnalyzeResult, error) {
	return f(ctx, ref)
}

func sampleEntry(id string, ttl time.Duration) *models.ProductAnalysis {
	now := time.Now().UTC()
	return &models.ProductAnalysis{
		ASIN:          id,
		ProductTitle:  "Wireless Earbuds",
		ProductImages: []string{"https://img.example.com/front.jpg"},
		ProductVideos: []string{},
		Reviews: []models.Review{
			{
				ID:                 id + "-r1",
				Author:             "Dana",
				Rating:             5,
				Title:              "Great sound",
				Content:            "Battery easily lasts the commute both ways.",
				Date:               "January 5, 2025",
				Verified:           true,
				SuspiciousPatterns: []string{},
				AuthenticityScore:  90,
			},
		},
		Analysis: models.Analysis{
			OverallAuthenticityScore: 90,
			TotalReviews:             1,
			VerifiedCount:            1,
			VerificationRate:         100,
			RatingDistribution:       map[int]int{5: 1},
			CommonSuspiciousPatterns: []models.PatternCount{},
			Verdict:                  models.VerdictLikelyAuthentic,
		},
		TotalReviews: 1,
		ScrapedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

// scriptedAnalyzer validates the reference like the real pipeline, then
// returns the scripted outcome for the resolved ASIN.
func scriptedAnalyzer(results map[string]*models.AnalyzeResult, failures map[string]error) analyzerFunc {
	return func(ctx context.Context, ref string) (*models.AnalyzeResult, error) {
		id, err := asin.Parse(ref)
		if err != nil {
			return nil, err
		}
		if failErr, ok := failures[id]; ok {
			return nil, failErr
		}
		if result, ok := results[id]; ok {
			return result, nil
		}
		return nil, reviewlens.ErrNoReviews
	}
}

func setupTestServer(t *testing.T, analyzer Analyzer) (*Server, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	server := NewServer(Config{Addr: ":0", CORSEnabled: false}, analyzer, st, metrics.NewRegistry())
	return server, st
}

func TestHandleAnalyze(t *testing.T) {
	okResult := models.FromEntry(sampleEntry("B08N5WRWNW", 24*time.Hour), false)
	analyzer := scriptedAnalyzer(
		map[string]*models.AnalyzeResult{"B08N5WRWNW": okResult},
		map[string]error{"B07BLOCKED": reviewlens.ErrBlocked},
	)
	server, _ := setupTestServer(t, analyzer)

	tests := []struct {
		name           string
		method         string
		body           interface{}
		wantStatusCode int
		wantErrMsg     string
		checkResponse  func(t *testing.T, body map[string]interface{})
	}{
		{
			name:           "bare asin",
			method:         http.MethodPost,
			body:           models.AnalyzeRequest{ASIN: "B08N5WRWNW"},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				if body["success"] != true {
					t.Errorf("success = %v, want true", body["success"])
				}
				if body["productId"] != "B08N5WRWNW" {
					t.Errorf("productId = %v, want B08N5WRWNW", body["productId"])
				}
				if body["fromCache"] != false {
					t.Errorf("fromCache = %v, want false", body["fromCache"])
				}
			},
		},
		{
			name:           "full product url",
			method:         http.MethodPost,
			body:           models.AnalyzeRequest{URL: "https://www.amazon.com/dp/B08N5WRWNW"},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				if body["productId"] != "B08N5WRWNW" {
					t.Errorf("productId = %v, want B08N5WRWNW", body["productId"])
				}
			},
		},
		{
			name:           "blocked scrape is a soft failure",
			method:         http.MethodPost,
			body:           models.AnalyzeRequest{ASIN: "B07BLOCKED"},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				if body["success"] != false {
					t.Errorf("success = %v, want false", body["success"])
				}
				if body["isBlocked"] != true {
					t.Errorf("isBlocked = %v, want true", body["isBlocked"])
				}
				if body["error"] == "" || body["error"] == nil {
					t.Error("expected a non-empty error message")
				}
			},
		},
		{
			name:           "unparseable reference",
			method:         http.MethodPost,
			body:           models.AnalyzeRequest{URL: "https://example.com/not-a-product"},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "missing url and asin",
			method:         http.MethodPost,
			body:           models.AnalyzeRequest{},
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "url or asin is required",
		},
		{
			name:           "invalid JSON",
			method:         http.MethodPost,
			body:           "invalid json",
			wantStatusCode: http.StatusBadRequest,
			wantErrMsg:     "invalid request body",
		},
		{
			name:           "GET method not allowed",
			method:         http.MethodGet,
			body:           nil,
			wantStatusCode: http.StatusMethodNotAllowed,
			wantErrMsg:     "method not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bodyBytes []byte
			var err error

			if tt.body != nil {
				if str, ok := tt.body.(string); ok {
					bodyBytes = []byte(str)
				} else {
					bodyBytes, err = json.Marshal(tt.body)
					if err != nil {
						t.Fatalf("Failed to marshal request body: %v", err)
					}
				}
			}

			req := httptest.NewRequest(tt.method, "/api/analyze", bytes.NewReader(bodyBytes))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			server.handleAnalyze(w, req)

			if w.Code != tt.wantStatusCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatusCode)
			}

			if tt.wantErrMsg != "" {
				var errResp map[string]string
				if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
					t.Fatalf("Failed to decode error response: %v", err)
				}
				if errResp["error"] != tt.wantErrMsg {
					t.Errorf("Error message = %q, want %q", errResp["error"], tt.wantErrMsg)
				}
			} else if tt.checkResponse != nil {
				var body map[string]interface{}
				if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				tt.checkResponse(t, body)
			}
		})
	}
}

func TestHandleGetAnalysis(t *testing.T) {
	server, st := setupTestServer(t, scriptedAnalyzer(nil, nil))

	if err := st.Put(context.Background(), sampleEntry("B08N5WRWNW", 24*time.Hour)); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
	if err := st.Put(context.Background(), sampleEntry("B00EXPIRED", -time.Minute)); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	tests := []struct {
		name           string
		path           string
		wantStatusCode int
	}{
		{"cached analysis", "/api/analysis/B08N5WRWNW", http.StatusOK},
		{"unknown asin", "/api/analysis/B000000000", http.StatusNotFound},
		{"expired entry", "/api/analysis/B00EXPIRED", http.StatusNotFound},
		{"invalid asin", "/api/analysis/tooshort", http.StatusBadRequest},
		{"missing asin", "/api/analysis/", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			server.handleAnalysis(w, req)

			if w.Code != tt.wantStatusCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatusCode)
			}

			if tt.wantStatusCode == http.StatusOK {
				var resp models.AnalyzeResult
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if !resp.Success {
					t.Error("Expected success to be true")
				}
				if !resp.FromCache {
					t.Error("Expected fromCache to be true for a stored analysis")
				}
				if resp.ProductID != "B08N5WRWNW" {
					t.Errorf("ProductID = %q, want B08N5WRWNW", resp.ProductID)
				}
			}
		})
	}
}

func TestHandleDeleteAnalysis(t *testing.T) {
	server, st := setupTestServer(t, scriptedAnalyzer(nil, nil))

	if err := st.Put(context.Background(), sampleEntry("B08N5WRWNW", 24*time.Hour)); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/analysis/B08N5WRWNW", nil)
	w := httptest.NewRecorder()
	server.handleAnalysis(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d", w.Code, http.StatusOK)
	}

	// Second delete should report not found.
	req = httptest.NewRequest(http.MethodDelete, "/api/analysis/B08N5WRWNW", nil)
	w = httptest.NewRecorder()
	server.handleAnalysis(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, scriptedAnalyzer(nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}

	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	w = httptest.NewRecorder()
	server.handleHealth(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestMetricsRoute(t *testing.T) {
	server, _ := setupTestServer(t, scriptedAnalyzer(nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	server.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "reviewlens_") {
		t.Error("Expected metrics exposition to contain reviewlens_ series")
	}
}

func TestMiddlewareCORS(t *testing.T) {
	st := store.NewMemoryStore()
	server := NewServer(Config{Addr: ":0", CORSEnabled: true}, scriptedAnalyzer(nil, nil), st, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/analyze", nil)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHandleAnalysisMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t, scriptedAnalyzer(nil, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/analysis/B08N5WRWNW", nil)
	w := httptest.NewRecorder()
	server.handleAnalysis(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleAnalyzeNetworkFailureIsSoft(t *testing.T) {
	analyzer := scriptedAnalyzer(nil, map[string]error{
		"B08N5WRWNW": errors.New("fetching reviews for B08N5WRWNW: connection refused"),
	})
	server, _ := setupTestServer(t, analyzer)

	bodyBytes, _ := json.Marshal(models.AnalyzeRequest{ASIN: "B08N5WRWNW"})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.handleAnalyze(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status code = %d, want %d", w.Code, http.StatusOK)
	}

	var resp models.AnalyzeFailure
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("Expected success to be false")
	}
	if !resp.IsBlocked {
		t.Error("Expected isBlocked to be true")
	}
}
