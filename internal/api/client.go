// Package api wraps the four backend endpoints behind one request wrapper
// that attaches the current credentials and turns every 401 into a session
// expiry, whichever endpoint produced it.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chemviz/internal/config"
	"chemviz/internal/models"
)

// Endpoint labels used in logs and metrics.
const (
	EndpointHistory = "history"
	EndpointSummary = "summary"
	EndpointUpload  = "upload"
	EndpointReport  = "pdf"
)

// HeaderSource yields the authorization header for the next request.
type HeaderSource interface {
	AuthHeader() http.Header
}

// Client talks to the visualizer backend.
type Client struct {
	base      string
	headers   HeaderSource
	onExpired func()
	http      *http.Client
	metrics   *Metrics
	userAgent string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the transport timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithMetrics records every call in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient builds a client for base (e.g. http://127.0.0.1:8000/api).
// onExpired is invoked once for every response with status 401.
func NewClient(base string, headers HeaderSource, onExpired func(), opts ...Option) *Client {
	c := &Client{
		base:      trimSlash(base),
		headers:   headers,
		onExpired: onExpired,
		http:      &http.Client{Timeout: 30 * time.Second},
		userAgent: "chemviz",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string { return c.base }

// ReportFilename is the name a downloaded report is saved under.
func ReportFilename(id int64) string {
	return fmt.Sprintf("report_%d.pdf", id)
}

// History lists past uploads in server order.
func (c *Client) History(ctx context.Context) ([]models.HistoryEntry, Result) {
	req, err := c.newRequest(ctx, http.MethodGet, "/history/", nil)
	if err != nil {
		return nil, failed(0, err)
	}
	body, res := c.do(EndpointHistory, req)
	if !res.OK() {
		return nil, res
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, failed(res.Status, fmt.Errorf("decode history: %w", err))
	}
	return entries, res
}

// Summary fetches the latest summary, or the one for id when id is non-nil.
func (c *Client) Summary(ctx context.Context, id *int64) (*models.SummaryReport, Result) {
	path := "/summary/"
	if id != nil {
		path = "/summary/" + strconv.FormatInt(*id, 10) + "/"
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, failed(0, err)
	}
	body, res := c.do(EndpointSummary, req)
	if !res.OK() {
		return nil, res
	}

	var report models.SummaryReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, failed(res.Status, fmt.Errorf("decode summary: %w", err))
	}
	if report.TypeDistribution == nil {
		report.TypeDistribution = map[string]int{}
	}
	return &report, res
}

// Upload posts the CSV content as the multipart field "file". The created
// dataset is returned when the backend echoes it.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*models.HistoryEntry, Result) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, failed(0, fmt.Errorf("build upload form: %w", err))
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, failed(0, fmt.Errorf("read %s: %w", filename, err))
	}
	if err := mw.Close(); err != nil {
		return nil, failed(0, fmt.Errorf("build upload form: %w", err))
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/", &buf)
	if err != nil {
		return nil, failed(0, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, res := c.do(EndpointUpload, req)
	if !res.OK() {
		return nil, res
	}

	var created models.HistoryEntry
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &created) != nil {
		return nil, res
	}
	return &created, res
}

// Report downloads the PDF for dataset id.
func (c *Client) Report(ctx context.Context, id int64) ([]byte, Result) {
	req, err := c.newRequest(ctx, http.MethodGet, "/pdf/"+strconv.FormatInt(id, 10)+"/", nil)
	if err != nil {
		return nil, failed(0, err)
	}
	req.Header.Set("Accept", "application/pdf")
	return c.do(EndpointReport, req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// do is the single wrapper every call goes through.
func (c *Client) do(endpoint string, req *http.Request) ([]byte, Result) {
	for k, vs := range c.headers.AuthHeader() {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)

	log := config.Logger.WithFields(logrus.Fields{
		"endpoint":   endpoint,
		"method":     req.Method,
		"request_id": requestID,
	})

	start := time.Now()
	body, res := c.roundTrip(req)
	elapsed := time.Since(start)
	c.metrics.observe(endpoint, res, elapsed)

	entry := log.WithFields(logrus.Fields{
		"status":   res.Status,
		"outcome":  res.Outcome.String(),
		"duration": elapsed.Round(time.Millisecond),
	})
	switch res.Outcome {
	case OutcomeOK:
		entry.Debug("backend call ok")
	case OutcomeAuthExpired:
		entry.Warn("backend rejected credentials")
		if c.onExpired != nil {
			c.onExpired()
		}
	default:
		entry.WithError(res.Err).Debug("backend call failed")
	}
	return body, res
}

func (c *Client) roundTrip(req *http.Request) ([]byte, Result) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failed(0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, Result{Outcome: OutcomeAuthExpired, Status: resp.StatusCode, Err: ErrAuthExpired}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res := failed(resp.StatusCode, fmt.Errorf("request failed with status code %d", resp.StatusCode))
		res.Detail = errorDetail(body)
		return nil, res
	}
	return body, ok(resp.StatusCode)
}

// errorDetail pulls the "error" field out of a JSON error body.
func errorDetail(body []byte) string {
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Detail
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
