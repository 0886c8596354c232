// Package ghoapi is a small client for the WHO Global Health Observatory OData API:
// the paginated indicator catalog and the per-indicator observation endpoints.
package ghoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/gho-indicators/entities"
	"github.com/giygas/gho-indicators/interfaces"
	"github.com/giygas/gho-indicators/logging"
	"github.com/giygas/gho-indicators/metrics"
	"golang.org/x/text/encoding/charmap"
)

// Compile-time check to ensure Client implements IndicatorSource
var _ interfaces.IndicatorSource = (*Client)(nil)

// DefaultBaseURL is the public GHO OData root
const DefaultBaseURL = "https://ghoapi.azureedge.net/api"

const defaultTimeout = 60 * time.Second

// ErrTransport marks network failures, undecodable bodies and non-success statuses
var ErrTransport = errors.New("gho transport error")

// StatusError is returned when the API answers with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Unwrap() error {
	return ErrTransport
}

// Client talks to the GHO API. Requests are issued one at a time by the caller;
// the client itself holds no per-request state.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. The client is copied, so a
// timeout option never changes the caller's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout, whatever the order of the options
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  "gho-indicators/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	return c
}

// BaseURL returns the API root the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// catalogPage is one page of the indicator catalog
type catalogPage struct {
	Value         []entities.IndicatorRecord `json:"value"`
	ODataNextLink string                     `json:"@odata.nextLink"`
	DataNextLink  string                     `json:"@data.nextLink"`
}

func (p catalogPage) nextLink() string {
	if p.ODataNextLink != "" {
		return p.ODataNextLink
	}
	return p.DataNextLink
}

// FetchIndicatorCatalog retrieves every catalog page, following the next link
// until a page carries none. Any failure aborts the whole fetch.
func (c *Client) FetchIndicatorCatalog(ctx context.Context) ([]entities.IndicatorRecord, error) {
	next := c.baseURL + "/Indicator"
	visited := make(map[string]bool)
	all := make([]entities.IndicatorRecord, 0, 4096)

	for next != "" {
		if visited[next] {
			return nil, fmt.Errorf("%w: pagination loop at %s", ErrTransport, next)
		}
		visited[next] = true

		logging.Debug("Fetching indicators page", "url", next)

		var page catalogPage
		if err := c.getJSON(ctx, "catalog", next, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Value...)

		link, err := c.resolve(next, page.nextLink())
		if err != nil {
			return nil, err
		}
		next = link
	}

	logging.Info("Indicator catalog fetched", "indicators", len(all), "pages", len(visited))
	return all, nil
}

// observationPage is the payload of a per-indicator endpoint
type observationPage struct {
	Value []map[string]json.RawMessage `json:"value"`
}

// FetchObservations retrieves the observation rows of one indicator, tagging each
// row with code. A non-2xx answer is reported as *StatusError.
func (c *Client) FetchObservations(ctx context.Context, code string) (entities.ObservationTable, error) {
	table := entities.NewObservationTable()

	endpoint := c.baseURL + "/" + url.PathEscape(code)
	var page observationPage
	if err := c.getJSON(ctx, "observations", endpoint, &page); err != nil {
		return table, err
	}

	table.Rows = make([]entities.ObservationRecord, 0, len(page.Value))
	for i, raw := range page.Value {
		for key := range raw {
			table.Columns[key] = true
		}

		rec, err := decodeObservation(raw)
		if err != nil {
			return table, fmt.Errorf("%w: indicator %s row %d: %w", ErrTransport, code, i, err)
		}
		rec.IndicatorCode = code
		table.Rows = append(table.Rows, rec)
	}

	return table, nil
}

// decodeObservation extracts the fields the reshaper needs. Absent keys and JSON
// nulls both become nil.
func decodeObservation(raw map[string]json.RawMessage) (entities.ObservationRecord, error) {
	var rec entities.ObservationRecord
	var err error

	if rec.SpatialDim, err = scalarText(raw[entities.FieldSpatialDim]); err != nil {
		return rec, fmt.Errorf("SpatialDim: %w", err)
	}
	if rec.TimeDim, err = scalarText(raw[entities.FieldTimeDim]); err != nil {
		return rec, fmt.Errorf("TimeDim: %w", err)
	}
	if rec.NumericValue, err = numericValue(raw[entities.FieldNumericValue]); err != nil {
		return rec, fmt.Errorf("NumericValue: %w", err)
	}
	return rec, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// scalarText renders a JSON string or number as text
func scalarText(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("expected string or number, got %s", raw)
	}
	text := n.String()
	return &text, nil
}

// numericValue accepts a JSON number or a numeric string
func numericValue(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected number, got %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("expected number, got %q", s)
	}
	return &f, nil
}

// resolve turns a possibly relative next link into an absolute URL
func (c *Client) resolve(current, link string) (string, error) {
	if link == "" {
		return "", nil
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: invalid URL %s: %w", ErrTransport, current, err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: invalid next link %s: %w", ErrTransport, link, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// getJSON issues a GET and decodes the body into out
func (c *Client) getJSON(ctx context.Context, endpoint, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to build request for %s: %w", ErrTransport, target, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: failed to fetch %s: %w", ErrTransport, target, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn("Failed to close response body", "error", err)
		}
	}()

	metrics.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body of %s: %w", ErrTransport, target, err)
	}

	if err := json.NewDecoder(utf8Reader(body)).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %w", ErrTransport, target, err)
	}
	return nil
}

// utf8Reader passes UTF-8 bodies through and decodes anything else from ISO-8859-1
func utf8Reader(body []byte) io.Reader {
	if utf8.Valid(body) {
		return bytes.NewReader(body)
	}
	logging.Debug("Response body is not UTF-8, decoding as ISO-8859-1", "size", len(body))
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(body))
}
