package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/giygas/gho-indicators/logging"
	"github.com/juju/ratelimit"
)

// Request limits for the read-only API
const (
	maxRequestBody = 1024      // bytes, every route is a GET
	maxHeaderSize  = 16 * 1024 // bytes
)

// Token bucket settings per client
const (
	bucketRate     = 3
	bucketCapacity = 1000
)

// RealIPMiddleware extracts the real IP from X-Forwarded-For header
func RealIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Take the first IP from the comma-separated list
			if idx := strings.Index(xff, ","); idx != -1 {
				xff = xff[:idx]
			}
			r.RemoteAddr = strings.TrimSpace(xff)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestSizeMiddleware limits the size of request headers and body
func RequestSizeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxRequestBody {
			logging.Warn("Request body too large",
				"content_length", r.ContentLength,
				"max_allowed", maxRequestBody,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent())

			respondWithJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("Request body too large. Maximum allowed size is %d bytes", maxRequestBody),
			})
			return
		}

		// Rough estimate of the header size
		headerSize := 0
		for key, values := range r.Header {
			headerSize += len(key)
			for _, value := range values {
				headerSize += len(value)
			}
		}

		if headerSize > maxHeaderSize {
			logging.Warn("Request headers too large",
				"header_size", headerSize,
				"max_allowed", maxHeaderSize,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent())

			respondWithJSON(w, http.StatusRequestHeaderFieldsTooLarge, map[string]string{
				"error": fmt.Sprintf("Request headers too large. Maximum allowed size is %d bytes", maxHeaderSize),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimiter manages per-client rate limiting
type RateLimiter struct {
	clients map[string]*ratelimit.Bucket
	mu      sync.RWMutex
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*ratelimit.Bucket),
		stop:    make(chan struct{}),
	}
	rl.cleanup(30 * time.Minute)
	return rl
}

func (rl *RateLimiter) getBucket(clientIP string) *ratelimit.Bucket {
	rl.mu.RLock()
	bucket, exists := rl.clients[clientIP]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		if bucket, exists = rl.clients[clientIP]; !exists {
			bucket = ratelimit.NewBucketWithRate(bucketRate, bucketCapacity)
			rl.clients[clientIP] = bucket
		}
		rl.mu.Unlock()
	}

	return bucket
}

// cleanup periodically forgets clients whose bucket is full again
func (rl *RateLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-rl.stop:
				return
			case <-ticker.C:
				rl.mu.Lock()
				for ip, bucket := range rl.clients {
					if bucket.Available() == bucket.Capacity() {
						delete(rl.clients, ip)
					}
				}
				rl.mu.Unlock()
			}
		}
	}()
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// getTokenCost prices a request; full table downloads cost the most
func getTokenCost(r *http.Request) int64 {
	path := r.URL.Path

	switch path {
	case "/health":
		return 5
	case "/metrics":
		return 0
	case "/v1/topics":
		return 5
	}

	switch {
	case strings.HasSuffix(path, "/long.csv"), strings.HasSuffix(path, "/wide.csv"):
		return 100
	case strings.HasSuffix(path, "/indicators"):
		return 10
	case strings.HasPrefix(path, "/v1/topics/"):
		return 5
	}

	return 5
}

// Handler implements rate limiting using token buckets keyed by client address
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket := rl.getBucket(r.RemoteAddr)
		tokenCost := getTokenCost(r)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bucketCapacity))
		w.Header().Set("X-RateLimit-Rate", strconv.Itoa(bucketRate))

		if bucket.TakeAvailable(tokenCost) < tokenCost {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(bucket.Available(), 10))
		next.ServeHTTP(w, r)
	})
}

// respondWithJSON writes a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logging.Error("Failed to encode JSON response", "error", err)
		}
	}
}
