// Package interfaces defines the core abstractions of the indicator harvester
// so the pipeline, scheduler and HTTP layer can be tested in isolation.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/gho-indicators/entities"
)

// DataQualityReport summarizes what a run produced and what it had to skip
type DataQualityReport struct {
	LongRows              int
	Countries             int
	Indicators            int // Indicators contributing at least one long row
	WideColumns           int
	NullValues            int      // Long rows whose NumericValue is null
	DroppedRows           int      // Raw rows dropped for a missing country, year or code
	DuplicateCells        int      // (country, indicator, year) triples seen more than once
	DuplicateKeys         []string // "COUNTRY|CODE|YEAR" for the first duplicates found
	EmptyIndicators       []string // Matched indicators that returned no rows
	UnavailableIndicators []string // Matched indicators answered with a non-2xx status
}

// TopicResult is the outcome of one successful topic run
type TopicResult struct {
	Topic       entities.Topic
	RunID       string
	Indicators  []entities.IndicatorRecord
	Long        entities.LongTable
	Wide        entities.WideTable
	Report      *DataQualityReport
	Files       []string
	CompletedAt time.Time
	Duration    time.Duration
}

// IndicatorSource defines the contract for the upstream statistics API.
type IndicatorSource interface {
	// FetchIndicatorCatalog returns every indicator, following pagination
	FetchIndicatorCatalog(ctx context.Context) ([]entities.IndicatorRecord, error)

	// FetchObservations returns the rows of one indicator, tagged with its code
	FetchObservations(ctx context.Context, code string) (entities.ObservationTable, error)
}

// TopicRunner runs the pipeline for a set of topics. Results hold the topics that
// succeeded; the error joins the failures of the others.
type TopicRunner interface {
	RunTopics(ctx context.Context, topics []entities.Topic) ([]*TopicResult, error)
}

// DataStore defines the contract for keeping the latest topic results in memory.
// It provides thread-safe access with atomic replacement on refresh.
type DataStore interface {
	GetResult(topic string) (*TopicResult, bool)
	GetResults() []*TopicResult
	GetLastUpdated() time.Time
	IsUpdating() bool
	GetServerStartTime() time.Time

	UpdateResults(results []*TopicResult)
	BeginUpdate() bool
	EndUpdate()
}

// Scheduler defines the contract for scheduled refreshes.
type Scheduler interface {
	Start() error
	Stop()
	NextRun() time.Time
}

// HTTPHandler defines the contract for the serve mode API handlers.
type HTTPHandler interface {
	ListTopics(w http.ResponseWriter, r *http.Request)
	GetTopic(w http.ResponseWriter, r *http.Request)
	GetTopicIndicators(w http.ResponseWriter, r *http.Request)
	DownloadLong(w http.ResponseWriter, r *http.Request)
	DownloadWide(w http.ResponseWriter, r *http.Request)
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current status, details and the HTTP code to answer with
	HealthCheck() (status string, details map[string]any, httpStatus int)
}

// DataValidator defines the contract for data quality checks and input validation.
type DataValidator interface {
	// ReportDataQuality inspects a reshaped topic
	ReportDataQuality(long entities.LongTable, wide entities.WideTable) *DataQualityReport

	// ValidateTopicName validates a topic name taken from user input
	ValidateTopicName(input string) error
}
