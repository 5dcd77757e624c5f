// Package events publishes analysis lifecycle events to Kafka so downstream
// consumers (alerting, seller dashboards, data warehouse loaders) can react
// to freshly scored products without polling the API.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TopicAnalyses is the default topic for analysis lifecycle events.
const TopicAnalyses = "reviewlens.analyses"

// Event types emitted by this service.
const (
	TypeAnalysisCompleted = "analysis.completed"
)

// Event is the envelope for every message this service publishes.
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   string          `json:"aggregate_id"`   // the ASIN
	AggregateType string          `json:"aggregate_type"` // always "product"
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates an event with a generated ID and current timestamp.
func NewEvent(eventType, asin, source string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		AggregateID:   asin,
		AggregateType: "product",
		Version:       1,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          dataBytes,
	}, nil
}

// AnalysisCompletedData is the payload of an analysis.completed event. Field
// names follow the API wire contract rather than the envelope's convention.
type AnalysisCompletedData struct {
	ASIN             string    `json:"asin"`
	ProductTitle     string    `json:"productTitle"`
	TotalReviews     int       `json:"totalReviews"`
	OverallScore     int       `json:"overallAuthenticityScore"`
	Verdict          string    `json:"verdict"`
	VerificationRate int       `json:"verificationRate"`
	ScrapedAt        time.Time `json:"scrapedAt"`
}
