// Package health reports serve mode health from the freshness of the topic data.
package health

import (
	"math"
	"net/http"
	"time"

	"github.com/giygas/gho-indicators/interfaces"
)

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore interfaces.DataStore
	scheduler interfaces.Scheduler
}

// NewHealthChecker creates a new health checker with injected dependencies.
// scheduler may be nil, in which case no next update is reported.
func NewHealthChecker(dataStore interfaces.DataStore, scheduler interfaces.Scheduler) interfaces.HealthChecker {
	return &HealthCheckerImpl{
		dataStore: dataStore,
		scheduler: scheduler,
	}
}

// HealthCheck returns the status, its details and the HTTP code for /health
func (h *HealthCheckerImpl) HealthCheck() (status string, data map[string]any, httpStatus int) {
	results := h.dataStore.GetResults()
	lastUpdate := h.dataStore.GetLastUpdated()
	isUpdating := h.dataStore.IsUpdating()

	dataAge := time.Since(lastUpdate)

	switch {
	case len(results) == 0:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 48*time.Hour:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable

	case dataAge > 24*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	case isUpdating && dataAge > 6*time.Hour:
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable

	default:
		status = "healthy"
		httpStatus = http.StatusOK
	}

	longRows := 0
	topics := make([]string, 0, len(results))
	for _, r := range results {
		topics = append(topics, r.Topic.Name)
		longRows += len(r.Long.Rows)
	}

	data = map[string]any{
		"last_update":    lastUpdate.Format(time.RFC3339),
		"data_age_hours": math.Round(dataAge.Hours()*10) / 10,
		"topics":         topics,
		"long_rows":      longRows,
		"is_updating":    isUpdating,
	}
	if start := h.dataStore.GetServerStartTime(); !start.IsZero() {
		data["uptime_seconds"] = math.Round(time.Since(start).Seconds())
	}
	if h.scheduler != nil {
		if next := h.scheduler.NextRun(); !next.IsZero() {
			data["next_update"] = next.Format(time.RFC3339)
		}
	}

	return status, data, httpStatus
}
