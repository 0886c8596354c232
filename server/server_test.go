package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/giygas/gho-indicators/config"
	"github.com/giygas/gho-indicators/data"
	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/handlers"
	"github.com/giygas/gho-indicators/health"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
	"github.com/giygas/gho-indicators/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{Port: "8080", Address: "127.0.0.1", Env: "test", LogLevel: "info"}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logging.InitLogger("")

	value := 5.0
	key := entities.ColumnKey{IndicatorCode: "X1", Year: 2020}
	topic := entities.Topic{Name: "HIV", Keywords: []string{"HIV"}, CountryColumn: entities.ColumnCountry}

	store := data.NewDataContainer()
	store.UpdateResults([]*interfaces.TopicResult{{
		Topic: topic,
		RunID: "run-1",
		Long: entities.LongTable{
			CountryColumn: entities.ColumnCountry,
			Rows:          []entities.LongRow{{Country: "USA", Year: 2020, IndicatorCode: "X1", NumericValue: &value}},
		},
		Wide: entities.WideTable{
			CountryColumn: entities.ColumnCountry,
			Countries:     []string{"USA"},
			Columns:       []entities.ColumnKey{key},
			Cells:         map[string]map[entities.ColumnKey]*float64{"USA": {key: &value}},
		},
		CompletedAt: time.Now(),
	}})

	handler := handlers.NewHTTPHandler(store, validation.NewDataValidator(), health.NewHealthChecker(store, nil), []entities.Topic{topic})
	s := NewServer(testConfig(), handler)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

func get(t *testing.T, s *Server, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, "127.0.0.1:8080", s.server.Addr)
	assert.NotNil(t, s.router)
	assert.NotNil(t, s.handler)
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/health", http.StatusOK, `"status":"healthy"`},
		{"/v1/topics", http.StatusOK, `"slug":"hiv"`},
		{"/v1/topics/hiv", http.StatusOK, `"loaded":true`},
		{"/v1/topics/hiv/indicators", http.StatusOK, "[]"},
		{"/v1/topics/hiv/long.csv", http.StatusOK, "USA,2020,X1,5.0"},
		{"/v1/topics/HIV/wide.csv", http.StatusOK, "IndicatorCode,X1"},
		{"/v1/topics/malaria", http.StatusNotFound, "Topic not found"},
		{"/metrics", http.StatusOK, "http_request_in_flight"},
		{"/nope", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, s, tt.path, map[string]string{"X-Forwarded-For": "203.0.113.1"})
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantBody != "" {
				assert.Contains(t, rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRateLimitHeadersAndExhaustion(t *testing.T) {
	s := newTestServer(t)
	headers := map[string]string{"X-Forwarded-For": "198.51.100.7"}

	rr := get(t, s, "/v1/topics", headers)
	assert.Equal(t, "1000", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "995", rr.Header().Get("X-RateLimit-Remaining"))

	// 100 tokens per download
	limited := false
	for i := 0; i < 12; i++ {
		rr = get(t, s, "/v1/topics/hiv/long.csv", headers)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	require.True(t, limited, "expected the client to be rate limited")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Other clients are unaffected
	rr = get(t, s, "/v1/topics", map[string]string{"X-Forwarded-For": "198.51.100.8"})
	assert.Equal(t, http.StatusOK, rr.Code, "other clients are not limited")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	rr := get(t, s, "/v1/topics", map[string]string{"Origin": "https://example.org"})
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDIsAssigned(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/topics", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestShutdown(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
	// Stopping twice is safe
	s.rateLimiter.Stop()
}
