// Package data keeps the latest topic results of serve mode in memory.
// Refreshes replace the whole result set atomically, so readers never see a
// half updated state.
package data

import (
	"sync/atomic"
	"time"

	"github.com/giygas/gho-indicators/config"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// DataContainer holds the results with atomic values for zero-downtime updates
type DataContainer struct {
	results         atomic.Value // []*interfaces.TopicResult
	resultsBySlug   atomic.Value // map[string]*interfaces.TopicResult
	lastUpdated     atomic.Value // time.Time
	updating        atomic.Bool
	serverStartTime atomic.Value // time.Time
}

// NewDataContainer creates a new DataContainer with no results
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.results.Store(make([]*interfaces.TopicResult, 0))
	dc.resultsBySlug.Store(make(map[string]*interfaces.TopicResult))
	dc.lastUpdated.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetResults returns the results of the last refresh, in topic order
func (dc *DataContainer) GetResults() []*interfaces.TopicResult {
	if v := dc.results.Load(); v != nil {
		if results, ok := v.([]*interfaces.TopicResult); ok {
			return results
		}
	}

	logging.Warn("Topic results are empty or invalid")
	return []*interfaces.TopicResult{}
}

// GetResult looks a topic up by name or slug, ignoring case
func (dc *DataContainer) GetResult(topic string) (*interfaces.TopicResult, bool) {
	v := dc.resultsBySlug.Load()
	bySlug, ok := v.(map[string]*interfaces.TopicResult)
	if !ok {
		return nil, false
	}
	result, ok := bySlug[config.Slug(topic)]
	return result, ok
}

// GetLastUpdated returns the timestamp of the last data update
func (dc *DataContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true if a refresh is currently in progress
func (dc *DataContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// UpdateResults merges a refresh into the container. Topics that failed in this
// refresh keep their previous result; topics that succeeded are replaced.
func (dc *DataContainer) UpdateResults(results []*interfaces.TopicResult) {
	previous := dc.GetResults()

	bySlug := make(map[string]*interfaces.TopicResult, len(previous)+len(results))
	merged := make([]*interfaces.TopicResult, 0, len(previous)+len(results))
	index := make(map[string]int, len(previous)+len(results))

	add := func(r *interfaces.TopicResult) {
		if r == nil {
			return
		}
		slug := config.Slug(r.Topic.Name)
		if i, ok := index[slug]; ok {
			merged[i] = r
		} else {
			index[slug] = len(merged)
			merged = append(merged, r)
		}
		bySlug[slug] = r
	}
	for _, r := range previous {
		add(r)
	}
	for _, r := range results {
		add(r)
	}

	// Atomic swap (zero downtime replacement)
	dc.results.Store(merged)
	dc.resultsBySlug.Store(bySlug)
	dc.lastUpdated.Store(time.Now())
}

// BeginUpdate marks the start of a refresh.
// Returns true if the refresh can proceed, false if another one is in progress
func (dc *DataContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a refresh
func (dc *DataContainer) EndUpdate() {
	dc.updating.Store(false)
}
