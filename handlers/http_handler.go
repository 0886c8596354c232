// Package handlers provides the serve mode HTTP handlers: topic listings, the
// indicator sets, long and wide table downloads and the health endpoint.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/giygas/gho-indicators/config"
	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
	"github.com/giygas/gho-indicators/writer"
	"github.com/go-chi/chi/v5"
)

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	dataStore     interfaces.DataStore
	validator     interfaces.DataValidator
	healthChecker interfaces.HealthChecker
	topics        []entities.Topic
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies.
// topics is the configured registry; a topic may be configured but not loaded yet.
func NewHTTPHandler(dataStore interfaces.DataStore, validator interfaces.DataValidator,
	healthChecker interfaces.HealthChecker, topics []entities.Topic) interfaces.HTTPHandler {
	return &HTTPHandlerImpl{
		dataStore:     dataStore,
		validator:     validator,
		healthChecker: healthChecker,
		topics:        topics,
	}
}

// TopicSummary describes a configured topic and its last successful run
type TopicSummary struct {
	Name          string                        `json:"name"`
	Slug          string                        `json:"slug"`
	Keywords      []string                      `json:"keywords"`
	CountryColumn string                        `json:"country_column"`
	Loaded        bool                          `json:"loaded"`
	RunID         string                        `json:"run_id,omitempty"`
	CompletedAt   *time.Time                    `json:"completed_at,omitempty"`
	DurationMs    int64                         `json:"duration_ms,omitempty"`
	Indicators    int                           `json:"indicators"`
	LongRows      int                           `json:"long_rows"`
	Countries     int                           `json:"countries"`
	WideColumns   int                           `json:"wide_columns"`
	Report        *interfaces.DataQualityReport `json:"report,omitempty"`
}

// HealthResponse defines the structure for consistent JSON ordering
type HealthResponse struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
	System map[string]any `json:"system"`
}

// RespondWithJSON writes a JSON response
func (h *HTTPHandlerImpl) RespondWithJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(code)
	w.Write(data)
}

// RespondWithError writes a JSON error response
func (h *HTTPHandlerImpl) RespondWithError(w http.ResponseWriter, code int, message string) {
	errorResponse := map[string]any{
		"error":   http.StatusText(code),
		"message": message,
		"code":    code,
	}
	h.RespondWithJSON(w, code, errorResponse)
}

func (h *HTTPHandlerImpl) summarize(topic entities.Topic, withReport bool) TopicSummary {
	summary := TopicSummary{
		Name:          topic.Name,
		Slug:          config.Slug(topic.Name),
		Keywords:      topic.Keywords,
		CountryColumn: topic.CountryColumn,
	}

	result, ok := h.dataStore.GetResult(topic.Name)
	if !ok {
		return summary
	}

	completed := result.CompletedAt
	summary.Loaded = true
	summary.RunID = result.RunID
	summary.CompletedAt = &completed
	summary.DurationMs = result.Duration.Milliseconds()
	summary.Indicators = len(result.Indicators)
	summary.LongRows = len(result.Long.Rows)
	summary.Countries = len(result.Wide.Countries)
	summary.WideColumns = len(result.Wide.Columns)
	if withReport {
		summary.Report = result.Report
	}
	return summary
}

// topicParam validates the {topic} URL parameter and resolves it against the registry
func (h *HTTPHandlerImpl) topicParam(w http.ResponseWriter, r *http.Request) (entities.Topic, bool) {
	name := chi.URLParam(r, "topic")
	if err := h.validator.ValidateTopicName(name); err != nil {
		logging.Warn("Unusual user input", "topic", name)
		h.RespondWithError(w, http.StatusBadRequest, err.Error())
		return entities.Topic{}, false
	}

	topic, err := config.FindTopic(h.topics, name)
	if err != nil {
		h.RespondWithError(w, http.StatusNotFound, "Topic not found")
		return entities.Topic{}, false
	}
	return topic, true
}

// loadedResult resolves the topic and its last result, answering 503 when the
// topic is configured but has not been loaded yet
func (h *HTTPHandlerImpl) loadedResult(w http.ResponseWriter, r *http.Request) (*interfaces.TopicResult, bool) {
	topic, ok := h.topicParam(w, r)
	if !ok {
		return nil, false
	}

	result, ok := h.dataStore.GetResult(topic.Name)
	if !ok {
		w.Header().Set("Retry-After", "60")
		h.RespondWithError(w, http.StatusServiceUnavailable, fmt.Sprintf("Topic %s has not been loaded yet", topic.Name))
		return nil, false
	}
	return result, true
}

// ListTopics returns every configured topic with its load state
func (h *HTTPHandlerImpl) ListTopics(w http.ResponseWriter, r *http.Request) {
	summaries := make([]TopicSummary, 0, len(h.topics))
	for _, topic := range h.topics {
		summaries = append(summaries, h.summarize(topic, false))
	}
	h.RespondWithJSON(w, http.StatusOK, summaries)
}

// GetTopic returns one topic with its data quality report
func (h *HTTPHandlerImpl) GetTopic(w http.ResponseWriter, r *http.Request) {
	topic, ok := h.topicParam(w, r)
	if !ok {
		return
	}
	h.RespondWithJSON(w, http.StatusOK, h.summarize(topic, true))
}

// GetTopicIndicators returns the indicators the topic keywords matched in the last run
func (h *HTTPHandlerImpl) GetTopicIndicators(w http.ResponseWriter, r *http.Request) {
	result, ok := h.loadedResult(w, r)
	if !ok {
		return
	}
	indicators := result.Indicators
	if indicators == nil {
		indicators = []entities.IndicatorRecord{}
	}
	h.RespondWithJSON(w, http.StatusOK, indicators)
}

// DownloadLong streams the long table of a topic
func (h *HTTPHandlerImpl) DownloadLong(w http.ResponseWriter, r *http.Request) {
	result, ok := h.loadedResult(w, r)
	if !ok {
		return
	}
	h.serveTable(w, r, result, "long", func(opts writer.Options) error {
		return writer.WriteLong(w, result.Long, opts)
	})
}

// DownloadWide streams the wide table of a topic
func (h *HTTPHandlerImpl) DownloadWide(w http.ResponseWriter, r *http.Request) {
	result, ok := h.loadedResult(w, r)
	if !ok {
		return
	}
	h.serveTable(w, r, result, "wide", func(opts writer.Options) error {
		return writer.WriteWide(w, result.Wide, opts)
	})
}

// serveTable sets the download headers and writes the table. The run id is the
// entity tag, so a client holding the current run gets 304.
func (h *HTTPHandlerImpl) serveTable(w http.ResponseWriter, r *http.Request, result *interfaces.TopicResult,
	shape string, write func(writer.Options) error) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	switch format {
	case "", writer.FormatCSV:
		format = writer.FormatCSV
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	case writer.FormatTSV:
		w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	default:
		h.RespondWithError(w, http.StatusBadRequest, "format must be csv or tsv")
		return
	}

	etag := fmt.Sprintf(`"%s-%s-%s"`, result.RunID, shape, format)
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", result.CompletedAt.UTC().Format(http.TimeFormat))
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	filename := fmt.Sprintf("%s_all_%s.%s", config.Slug(result.Topic.Name), shape, format)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)

	if err := write(writer.Options{Format: format}); err != nil {
		logging.Error("Failed to stream table", "topic", result.Topic.Name, "shape", shape, "error", err)
	}
}

// HealthCheck returns the data health plus process statistics
func (h *HTTPHandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status, data, httpStatus := h.healthChecker.HealthCheck()

	response := HealthResponse{
		Status: status,
		Data:   data,
		System: map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": int(m.Alloc / 1024 / 1024),
				"sys_mb":   int(m.Sys / 1024 / 1024),
				"num_gc":   m.NumGC,
			},
		},
	}

	h.RespondWithJSON(w, httpStatus, response)
}
