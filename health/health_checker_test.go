package health

import (
	"net/http"
	"testing"
	"time"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/stretchr/testify/assert"
)

// mockHealthDataStore implements interfaces.DataStore with fixed values
type mockHealthDataStore struct {
	results     []*interfaces.TopicResult
	lastUpdated time.Time
	isUpdating  bool
	startTime   time.Time
}

func (m *mockHealthDataStore) GetResult(topic string) (*interfaces.TopicResult, bool) {
	for _, r := range m.results {
		if r.Topic.Name == topic {
			return r, true
		}
	}
	return nil, false
}

func (m *mockHealthDataStore) GetResults() []*interfaces.TopicResult   { return m.results }
func (m *mockHealthDataStore) GetLastUpdated() time.Time               { return m.lastUpdated }
func (m *mockHealthDataStore) IsUpdating() bool                        { return m.isUpdating }
func (m *mockHealthDataStore) GetServerStartTime() time.Time           { return m.startTime }
func (m *mockHealthDataStore) UpdateResults([]*interfaces.TopicResult) {}
func (m *mockHealthDataStore) BeginUpdate() bool                       { return true }
func (m *mockHealthDataStore) EndUpdate()                              {}

type mockScheduler struct{ next time.Time }

func (m *mockScheduler) Start() error       { return nil }
func (m *mockScheduler) Stop()              {}
func (m *mockScheduler) NextRun() time.Time { return m.next }

func loaded(rows int) []*interfaces.TopicResult {
	return []*interfaces.TopicResult{{
		Topic: entities.Topic{Name: "HIV"},
		Long:  entities.LongTable{Rows: make([]entities.LongRow, rows)},
	}}
}

func TestHealthCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		store      *mockHealthDataStore
		wantStatus string
		wantCode   int
	}{
		{
			name:       "healthy",
			store:      &mockHealthDataStore{results: loaded(3), lastUpdated: time.Now().Add(-time.Hour)},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
		{
			name:       "no topic loaded",
			store:      &mockHealthDataStore{lastUpdated: time.Now()},
			wantStatus: "unhealthy",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "older than a day",
			store:      &mockHealthDataStore{results: loaded(3), lastUpdated: time.Now().Add(-30 * time.Hour)},
			wantStatus: "degraded",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "older than two days",
			store:      &mockHealthDataStore{results: loaded(3), lastUpdated: time.Now().Add(-50 * time.Hour)},
			wantStatus: "unhealthy",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "long running update",
			store:      &mockHealthDataStore{results: loaded(3), lastUpdated: time.Now().Add(-7 * time.Hour), isUpdating: true},
			wantStatus: "degraded",
			wantCode:   http.StatusServiceUnavailable,
		},
		{
			name:       "short update",
			store:      &mockHealthDataStore{results: loaded(3), lastUpdated: time.Now().Add(-time.Hour), isUpdating: true},
			wantStatus: "healthy",
			wantCode:   http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, code := NewHealthChecker(tt.store, nil).HealthCheck()
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestHealthCheckDetails(t *testing.T) {
	next := time.Now().Add(3 * time.Hour)
	store := &mockHealthDataStore{
		results:     loaded(42),
		lastUpdated: time.Now(),
		startTime:   time.Now().Add(-time.Minute),
	}

	_, data, _ := NewHealthChecker(store, &mockScheduler{next: next}).HealthCheck()

	assert.Equal(t, 42, data["long_rows"])
	assert.Equal(t, []string{"HIV"}, data["topics"])
	assert.Equal(t, next.Format(time.RFC3339), data["next_update"])
	assert.Contains(t, data, "uptime_seconds")
	assert.Equal(t, false, data["is_updating"])
}

func TestHealthCheckWithoutScheduler(t *testing.T) {
	_, data, _ := NewHealthChecker(&mockHealthDataStore{results: loaded(1), lastUpdated: time.Now()}, nil).HealthCheck()

	assert.NotContains(t, data, "next_update", "no scheduler")
	assert.NotContains(t, data, "uptime_seconds", "no start time")
}
