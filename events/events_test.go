package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventFields(t *testing.T) {
	data := AnalysisCompletedData{
		ASIN:         "B08N5WRWNW",
		ProductTitle: "Wireless Earbuds",
		TotalReviews: 8,
		OverallScore: 74,
		Verdict:      "Mixed Signals",
		ScrapedAt:    time.Now().UTC(),
	}

	event, err := NewEvent(TypeAnalysisCompleted, "B08N5WRWNW", "reviewlens-api", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID, "EventID should be a non-empty UUID")
	assert.Equal(t, "analysis.completed", event.EventType)
	assert.Equal(t, "B08N5WRWNW", event.AggregateID)
	assert.Equal(t, "product", event.AggregateType)
	assert.Equal(t, "reviewlens-api", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var roundTripped AnalysisCompletedData
	require.NoError(t, json.Unmarshal(event.Data, &roundTripped))
	assert.Equal(t, data.ASIN, roundTripped.ASIN)
	assert.Equal(t, data.OverallScore, roundTripped.OverallScore)
	assert.Equal(t, data.Verdict, roundTripped.Verdict)
}

func TestNewEventInvalidData(t *testing.T) {
	// Channels are not serializable to JSON.
	_, err := NewEvent(TypeAnalysisCompleted, "B08N5WRWNW", "reviewlens-api", make(chan int))
	require.Error(t, err)
}

func TestNewEventUniqueIDs(t *testing.T) {
	first, err := NewEvent(TypeAnalysisCompleted, "B08N5WRWNW", "reviewlens-api", nil)
	require.NoError(t, err)
	second, err := NewEvent(TypeAnalysisCompleted, "B08N5WRWNW", "reviewlens-api", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestEnvelopeWireFormat(t *testing.T) {
	event, err := NewEvent(TypeAnalysisCompleted, "B08N5WRWNW", "reviewlens-api", AnalysisCompletedData{ASIN: "B08N5WRWNW"})
	require.NoError(t, err)

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"event_id", "event_type", "aggregate_id", "aggregate_type", "version", "timestamp", "source", "data"} {
		assert.Contains(t, fields, key)
	}
}

func TestDefaultConfig(t *testing.T) {
	brokers := []string{"broker1:9092", "broker2:9092"}
	cfg := DefaultConfig(brokers)

	assert.Equal(t, brokers, cfg.Brokers)
	assert.Equal(t, TopicAnalyses, cfg.Topic)
	assert.Equal(t, "reviewlens-api", cfg.Source)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
}

func TestNewPublisherCreatesInstance(t *testing.T) {
	// The writer connects lazily, so no broker is needed here.
	p := NewPublisher(DefaultConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)

	// Close should succeed even without a real broker.
	assert.NoError(t, p.Close())
}
