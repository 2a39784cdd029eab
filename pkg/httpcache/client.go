package httpcache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
)

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CachedClient wraps an HTTP client so successful GET responses are served
// from the cache. Non-GET requests pass through untouched.
type CachedClient struct {
	cache      *Cache
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewCachedClient creates a caching HTTP client.
func NewCachedClient(cache *Cache, httpClient HTTPClient, logger *slog.Logger) *CachedClient {
	return &CachedClient{cache: cache, httpClient: httpClient, logger: logger}
}

// Do performs an HTTP request, serving and filling the cache for GETs.
func (c *CachedClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.cache == nil || req.Method != http.MethodGet {
		return c.httpClient.Do(req)
	}

	url := req.URL.String()
	if data, found := c.cache.Get(url); found {
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(data)),
			Header:     make(http.Header),
			Request:    req,
		}
		resp.Header.Set("X-From-Cache", "true")
		return resp, nil
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}

	// Only successful responses are worth remembering.
	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "error", closeErr)
		}
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(url, body); err != nil {
			c.logger.Debug("cache set failed", "url", url, "error", err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}

	return resp, nil
}
