// Package geocode resolves GPS coordinates to countries using the Google
// Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Country is the reverse-geocoding result: an ISO 3166-1 alpha-2 code plus
// a display name.
type Country struct {
	Code string
	Name string
}

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client handles reverse-geocoding API operations.
type Client struct {
	apiKey     string
	httpClient HTTPClient
	logger     *slog.Logger
}

// NewClient creates a new reverse-geocoding client.
func NewClient(apiKey string, httpClient HTTPClient, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ReverseGeocode resolves coordinates to a country. It returns (nil, nil)
// when the service finds no country for the coordinates; any transport or
// decoding failure is an error the caller should treat as a per-item miss.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (*Country, error) {
	if c.apiKey == "" {
		c.logger.Warn("geocoding API key not configured - skipping reverse geocode", "lat", lat, "lng", lng)
		return nil, errors.New("geocoding API key not configured")
	}

	apiURL := fmt.Sprintf(
		"https://maps.googleapis.com/maps/api/geocode/json?latlng=%f,%f&result_type=country&key=%s",
		lat, lng, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Results []struct {
			AddressComponents []struct {
				LongName  string   `json:"long_name"`
				ShortName string   `json:"short_name"`
				Types     []string `json:"types"`
			} `json:"address_components"`
		} `json:"results"`
		Status string `json:"status"`
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Debug("reverse geocode JSON parse error", "lat", lat, "lng", lng, "error", err)
		return nil, fmt.Errorf("failed to parse reverse geocode response: %w", err)
	}

	if result.Status == "ZERO_RESULTS" {
		c.logger.Debug("no country for coordinates", "lat", lat, "lng", lng)
		return nil, nil
	}
	if result.Status != "OK" || len(result.Results) == 0 {
		return nil, fmt.Errorf("reverse geocode failed: %s", result.Status)
	}

	for _, res := range result.Results {
		for _, comp := range res.AddressComponents {
			for _, typ := range comp.Types {
				if typ == "country" {
					return &Country{Code: comp.ShortName, Name: comp.LongName}, nil
				}
			}
		}
	}

	// OK status but no country component: treat as a miss, not an error.
	c.logger.Debug("reverse geocode result without country component", "lat", lat, "lng", lng)
	return nil, nil
}
