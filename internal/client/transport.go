package client

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

	"github.com/okian/ceoorcto/internal/adapters/mq/queue"
	service "github.com/okian/ceoorcto/internal/app"
	"github.com/okian/ceoorcto/internal/domain/model"
)

// Fetcher loads comparisons.
type Fetcher interface {
	Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error)
}

// AssetReporter forwards missing image reports.
type AssetReporter interface {
	ReportMissingAsset(ctx context.Context, report model.AssetReport) error
}

// Transport is the full server surface the game uses.
type Transport interface {
	Fetcher
	AssetReporter
	SubmitStats(ctx context.Context, sub model.StatsSubmission) (service.SubmitResult, error)
	Submit(ctx context.Context, job queue.Job) error
	Rankings(ctx context.Context, limit int) (model.Rankings, error)
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Unwrap maps stable error codes back onto the domain sentinels.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "insufficient_population":
		return model.ErrInsufficientPopulation
	case "intro_missing":
		return model.ErrIntroProfilesMissing
	case "bad_request":
		return model.ErrInvalidSubmission
	case "not_found":
		return model.ErrNotFound
	}
	return nil
}

// HTTPClient talks to the game server.
type HTTPClient struct {
	base    *url.URL
	http    *http.Client
	country string
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// WithCountry sends the edge country header, as a CDN would.
func WithCountry(code string) HTTPOption {
	return func(h *HTTPClient) {
		h.country = strings.ToUpper(strings.TrimSpace(code))
	}
}

// NewHTTPClient creates a client for the server at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client.NewHTTPClient: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client.NewHTTPClient: %q is not an absolute url", baseURL)
	}
	c := &HTTPClient{base: u, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Comparison implements Fetcher.
func (c *HTTPClient) Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error) {
	q := url.Values{}
	q.Set("firstVisit", strconv.FormatBool(req.FirstVisit))
	if req.Location != "" {
		q.Set("location", req.Location)
	}
	if req.Variant != "" {
		q.Set("variant", string(req.Variant))
	}
	var resp model.ComparisonResponse
	err := c.do(ctx, http.MethodGet, "/api/comparison", q, nil, &resp)
	return resp, err
}

// SubmitStats posts a finished batch.
func (c *HTTPClient) SubmitStats(ctx context.Context, sub model.StatsSubmission) (service.SubmitResult, error) {
	var ack struct {
		Success   bool `json:"success"`
		Updated   int  `json:"updated"`
		Duplicate bool `json:"duplicate"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/stats", nil, sub, &ack); err != nil {
		return service.SubmitResult{}, err
	}
	return service.SubmitResult{Updated: ack.Updated, Duplicate: ack.Duplicate}, nil
}

// Submit lets the client feed a flush worker pool.
func (c *HTTPClient) Submit(ctx context.Context, job queue.Job) error {
	_, err := c.SubmitStats(ctx, model.StatsSubmission{BatchID: job.BatchID, People: job.People})
	return err
}

// ReportMissingAsset implements AssetReporter.
func (c *HTTPClient) ReportMissingAsset(ctx context.Context, report model.AssetReport) error {
	body := make(map[string]any, len(report.Extras)+3)
	for k, v := range report.Extras {
		body[k] = v
	}
	body["reason"] = report.Reason
	if report.Timestamp != "" {
		body["timestamp"] = report.Timestamp
	}
	if report.Person != nil {
		body["person"] = report.Person
	}
	return c.do(ctx, http.MethodPost, "/api/log", nil, body, nil)
}

// Rankings fetches the ranking lists.
func (c *HTTPClient) Rankings(ctx context.Context, limit int) (model.Rankings, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out model.Rankings
	err := c.do(ctx, http.MethodGet, "/api/rankings", q, nil, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	op := "client.HTTPClient " + method + " " + path
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.country != "" {
		req.Header.Set("X-Vercel-IP-Country", c.country)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Code    string `json:"code"`
			Details string `json:"details"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = payload.Code, payload.Error, payload.Details
		}
		return fmt.Errorf("%s: %w", op, apiErr)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

// Backend is the in-process server surface.
type Backend interface {
	Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error)
	SubmitStats(ctx context.Context, sub model.StatsSubmission) (service.SubmitResult, error)
	ReportMissingAsset(ctx context.Context, report model.AssetReport)
	Rankings(ctx context.Context, limit int) (model.Rankings, error)
}

// LocalTransport calls a Backend directly. JSON round trips keep the
// client from sharing slices with the server.
type LocalTransport struct {
	backend Backend
}

// NewLocalTransport wraps backend.
func NewLocalTransport(backend Backend) *LocalTransport {
	return &LocalTransport{backend: backend}
}

// Comparison implements Fetcher.
func (l *LocalTransport) Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error) {
	resp, err := l.backend.Comparison(ctx, req)
	if err != nil {
		return model.ComparisonResponse{}, err
	}
	var out model.ComparisonResponse
	if err := roundTrip(resp, &out); err != nil {
		return model.ComparisonResponse{}, fmt.Errorf("client.LocalTransport.Comparison: %w", err)
	}
	return out, nil
}

// SubmitStats forwards a batch.
func (l *LocalTransport) SubmitStats(ctx context.Context, sub model.StatsSubmission) (service.SubmitResult, error) {
	return l.backend.SubmitStats(ctx, sub)
}

// Submit lets the transport feed a flush worker pool.
func (l *LocalTransport) Submit(ctx context.Context, job queue.Job) error {
	_, err := l.backend.SubmitStats(ctx, model.StatsSubmission{BatchID: job.BatchID, People: job.People})
	return err
}

// ReportMissingAsset implements AssetReporter.
func (l *LocalTransport) ReportMissingAsset(ctx context.Context, report model.AssetReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.backend.ReportMissingAsset(ctx, report)
	return nil
}

// Rankings forwards the ranking query.
func (l *LocalTransport) Rankings(ctx context.Context, limit int) (model.Rankings, error) {
	return l.backend.Rankings(ctx, limit)
}

func roundTrip(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// IsCancelled reports whether err only means the request was abandoned.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
