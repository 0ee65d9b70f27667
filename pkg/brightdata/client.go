// Package brightdata provides a client for the Bright Data datasets v3
// scraping API: trigger a collection job, poll its snapshot, fetch results.
package brightdata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Bright Data scraper operations.
type Client interface {
	// TriggerDiscoverByURL starts a collection job over page URLs
	// (discover/trending pages, hashtag pages).
	TriggerDiscoverByURL(ctx context.Context, urls []string, country string, postsPerPage int) (*TriggerResponse, error)
	// TriggerDiscoverByKeyword starts a keyword-search collection job.
	TriggerDiscoverByKeyword(ctx context.Context, keywords []string, country string, postsPerKeyword int) (*TriggerResponse, error)
	// SnapshotStatus fetches the current state of a collection job.
	SnapshotStatus(ctx context.Context, snapshotID string) (*SnapshotStatus, error)
	// SnapshotResults downloads the records of a completed job. Handles
	// both JSON-array and NDJSON response bodies.
	SnapshotResults(ctx context.Context, snapshotID string) ([]map[string]any, error)
}

// TriggerResponse is returned when a collection job is accepted.
type TriggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// SnapshotStatus reports the state of a collection job.
type SnapshotStatus struct {
	Status string `json:"status"` // pending | running | completed | failed
	Error  string `json:"error,omitempty"`
}

// Done reports whether the job reached a terminal state.
func (s *SnapshotStatus) Done() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// urlInput is one element of a discover-by-URL trigger body.
type urlInput struct {
	URL        string `json:"url"`
	Country    string `json:"country"`
	NumOfPosts int    `json:"num_of_posts"`
}

// keywordInput is one element of a discover-by-keyword trigger body.
type keywordInput struct {
	SearchKeyword string `json:"search_keyword"`
	Country       string `json:"country"`
	NumOfPosts    int    `json:"num_of_posts"`
}

// Option configures the Bright Data client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	apiKey    string
	datasetID string
	baseURL   string
	http      *http.Client
}

// NewClient creates a Bright Data client for one dataset.
func NewClient(apiKey, datasetID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		datasetID: datasetID,
		baseURL:   "https://api.brightdata.com/datasets/v3",
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// doJSON executes a request with exponential backoff on transient failures
// and returns the body, status code, and content type.
func (c *httpClient) doJSON(ctx context.Context, method, reqURL string, payload any) ([]byte, int, string, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, "", eris.Wrap(err, "brightdata: marshal request body")
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return nil, 0, "", eris.Wrap(err, "brightdata: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, "", ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, "", lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, "", eris.Wrap(readErr, "brightdata: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("brightdata: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, resp.Header.Get("Content-Type"), nil
	}

	return nil, 0, "", lastErr
}

// trigger posts a job body with the given discover_by mode.
func (c *httpClient) trigger(ctx context.Context, discoverBy string, payload any) (*TriggerResponse, error) {
	q := url.Values{}
	q.Set("dataset_id", c.datasetID)
	q.Set("include_errors", "true")
	q.Set("type", "discover_new")
	q.Set("discover_by", discoverBy)
	reqURL := fmt.Sprintf("%s/trigger?%s", c.baseURL, q.Encode())

	body, status, _, err := c.doJSON(ctx, http.MethodPost, reqURL, payload)
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: trigger request failed")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("brightdata: trigger unexpected status %d: %s", status, string(body))
	}

	var result TriggerResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "brightdata: unmarshal trigger response")
	}
	if result.SnapshotID == "" {
		return nil, eris.New("brightdata: trigger response missing snapshot_id")
	}

	return &result, nil
}

func (c *httpClient) TriggerDiscoverByURL(ctx context.Context, urls []string, country string, postsPerPage int) (*TriggerResponse, error) {
	if len(urls) == 0 {
		return nil, eris.New("brightdata: no urls to trigger")
	}
	payload := make([]urlInput, 0, len(urls))
	for _, u := range urls {
		payload = append(payload, urlInput{URL: u, Country: country, NumOfPosts: postsPerPage})
	}
	return c.trigger(ctx, "url", payload)
}

func (c *httpClient) TriggerDiscoverByKeyword(ctx context.Context, keywords []string, country string, postsPerKeyword int) (*TriggerResponse, error) {
	if len(keywords) == 0 {
		return nil, eris.New("brightdata: no keywords to trigger")
	}
	payload := make([]keywordInput, 0, len(keywords))
	for _, k := range keywords {
		payload = append(payload, keywordInput{SearchKeyword: k, Country: country, NumOfPosts: postsPerKeyword})
	}
	return c.trigger(ctx, "keyword", payload)
}

func (c *httpClient) SnapshotStatus(ctx context.Context, snapshotID string) (*SnapshotStatus, error) {
	reqURL := fmt.Sprintf("%s/snapshot/%s", c.baseURL, url.PathEscape(snapshotID))

	body, status, _, err := c.doJSON(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: status request failed")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("brightdata: status unexpected status %d: %s", status, string(body))
	}

	var result SnapshotStatus
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "brightdata: unmarshal status response")
	}

	return &result, nil
}

func (c *httpClient) SnapshotResults(ctx context.Context, snapshotID string) ([]map[string]any, error) {
	reqURL := fmt.Sprintf("%s/snapshot/%s?format=json", c.baseURL, url.PathEscape(snapshotID))

	body, status, contentType, err := c.doJSON(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "brightdata: results request failed")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("brightdata: results unexpected status %d: %s", status, string(body))
	}

	return parseResults(body, contentType)
}

// parseResults decodes either a JSON array, an object with a "data" array,
// or an NDJSON stream.
func parseResults(body []byte, contentType string) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if strings.Contains(contentType, "application/json") && trimmed[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, eris.Wrap(err, "brightdata: unmarshal results array")
		}
		return records, nil
	}

	if trimmed[0] == '{' && !bytes.Contains(trimmed, []byte("\n")) {
		var wrapper struct {
			Data []map[string]any `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Data != nil {
			return wrapper.Data, nil
		}
	}

	// NDJSON: one record per line.
	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, eris.Wrap(err, "brightdata: unmarshal ndjson line")
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "brightdata: scan ndjson body")
	}

	return records, nil
}
