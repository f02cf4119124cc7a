// Package ctgov provides a client for the ClinicalTrials.gov API v2.
package ctgov

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/trialscope/sitescope/internal/model"
)

// Query filters a /studies search. Empty fields are omitted.
type Query struct {
	Condition string
	Phase     string
	Status    string
	Country   string
	PageSize  int
	// MaxPages caps pagination; zero fetches until the registry stops
	// returning a page token.
	MaxPages int
}

// String renders the query the way it is recorded on a pipeline run.
func (q Query) String() string {
	var parts []string
	if q.Condition != "" {
		parts = append(parts, "condition="+q.Condition)
	}
	if q.Phase != "" {
		parts = append(parts, "phase="+q.Phase)
	}
	if q.Status != "" {
		parts = append(parts, "status="+q.Status)
	}
	if q.Country != "" {
		parts = append(parts, "country="+q.Country)
	}
	return strings.Join(parts, " ")
}

// expr builds the AREA[] filter expression for query.cond.
func (q Query) expr() string {
	var parts []string
	if q.Condition != "" {
		parts = append(parts, "AREA[Condition]"+q.Condition)
	}
	if q.Phase != "" {
		parts = append(parts, "AREA[Phase]"+q.Phase)
	}
	if q.Status != "" {
		parts = append(parts, "AREA[OverallStatus]"+q.Status)
	}
	if q.Country != "" {
		parts = append(parts, "AREA[LocationCountry]"+q.Country)
	}
	return strings.Join(parts, " AND ")
}

// Client defines the registry operations the pipeline uses.
type Client interface {
	// FetchStudies pages through /studies and returns parsed records
	// plus the count of malformed studies skipped.
	FetchStudies(ctx context.Context, q Query) ([]model.TrialRecord, int, error)
	// FetchStudy returns a single study by NCT ID.
	FetchStudy(ctx context.Context, nctID string) (*model.TrialRecord, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry sets the attempt count and initial backoff delay.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *httpClient) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

type httpClient struct {
	baseURL    string
	http       *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a ClinicalTrials.gov API v2 client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://clinicaltrials.gov/api/v2",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:    rate.NewLimiter(5, 1),
		maxRetries: 3,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FetchStudies(ctx context.Context, q Query) ([]model.TrialRecord, int, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var records []model.TrialRecord
	malformed := 0
	pageToken := ""
	pages := 0

	for {
		if q.MaxPages > 0 && pages >= q.MaxPages {
			break
		}

		params := url.Values{}
		params.Set("format", "json")
		params.Set("pageSize", strconv.Itoa(pageSize))
		if expr := q.expr(); expr != "" {
			params.Set("query.cond", expr)
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		body, err := c.get(ctx, c.baseURL+"/studies?"+params.Encode())
		if err != nil {
			return nil, malformed, err
		}

		var page studiesResponse
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, malformed, eris.Wrap(err, "ctgov: decode studies page")
		}

		for _, s := range page.Studies {
			record, ok := parseStudy(s)
			if !ok {
				malformed++
				zap.L().Warn("ctgov: study without NCT ID skipped")
				continue
			}
			records = append(records, record)
		}
		pages++

		zap.L().Debug("ctgov: fetched page",
			zap.Int("page", pages),
			zap.Int("studies", len(page.Studies)),
		)

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	zap.L().Info("ctgov: fetch complete",
		zap.String("query", q.String()),
		zap.Int("studies", len(records)),
		zap.Int("malformed", malformed),
	)
	return records, malformed, nil
}

func (c *httpClient) FetchStudy(ctx context.Context, nctID string) (*model.TrialRecord, error) {
	body, err := c.get(ctx, c.baseURL+"/studies/"+url.PathEscape(nctID)+"?format=json")
	if err != nil {
		return nil, err
	}

	var s study
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, eris.Wrapf(err, "ctgov: decode study %s", nctID)
	}
	record, ok := parseStudy(s)
	if !ok {
		return nil, eris.Wrapf(model.ErrMalformedRecord, "ctgov: study %s has no NCT ID", nctID)
	}
	return &record, nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// get executes a GET with rate limiting and exponential backoff retries
// on transient failures (429, 500, 502, 503).
func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ctgov: create request")
	}
	req.Header.Set("Accept", "application/json")

	backoff := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "ctgov: rate limit wait")
		}

		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			lastErr = eris.Wrap(err, "ctgov: request")
			if attempt < c.maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "ctgov: read response body")
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = eris.Errorf("ctgov: status %d: %s", resp.StatusCode, string(body))
		if retryableStatusCode(resp.StatusCode) && attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return nil, lastErr
	}
	return nil, lastErr
}
