// Package places is a small client for the Google Places Text Search API.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/JakeFAU/leadscout/internal/metrics"
)

const (
	defaultBaseURL = "https://places.googleapis.com/v1"

	// DefaultPageSize is the page size requested when none is given.
	DefaultPageSize = 20

	// MaxPageSize is the largest page the API returns.
	MaxPageSize = 20

	fieldMask = "places.id,places.displayName,places.businessStatus,places.formattedAddress," +
		"places.nationalPhoneNumber,places.internationalPhoneNumber,places.websiteUri," +
		"places.userRatingCount,places.rating,places.primaryType,places.googleMapsUri,nextPageToken"

	maxErrorBody = 512
)

// Client performs Google Places API operations.
type Client interface {
	SearchText(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// Waiter gates outbound requests, typically a rate limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// SearchRequest is one page of a text search.
type SearchRequest struct {
	Query     string
	PageSize  int
	PageToken string
}

// SearchResponse is the response from Places Text Search.
type SearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLimiter gates each request through w.
func WithLimiter(w Waiter) Option {
	return func(c *httpClient) {
		c.limiter = w
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter Waiter
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchTextBody struct {
	TextQuery string `json:"textQuery"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

// SearchText issues exactly one searchText call. Non-2xx and undecodable
// responses are returned as *APIError.
func (c *httpClient) SearchText(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	pageSize := sr.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	body, err := json.Marshal(searchTextBody{
		TextQuery: sr.Query,
		PageSize:  pageSize,
		PageToken: sr.PageToken,
	})
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	endpoint := c.baseURL + "/places:searchText"
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return nil, eris.Wrap(err, "places: rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObservePlacesRequest(0, time.Since(start))
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck
	metrics.ObservePlacesRequest(resp.StatusCode, time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response: %v", err),
		}
	}
	return &result, nil
}

// APIError is a non-success or malformed response from the Places API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("places api: status %d: %s", e.StatusCode, e.Message)
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func errorMessage(body []byte) string {
	var ge googleError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Error.Message != "" {
		if ge.Error.Status != "" {
			return ge.Error.Status + ": " + ge.Error.Message
		}
		return ge.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		return "empty response body"
	}
	return msg
}
