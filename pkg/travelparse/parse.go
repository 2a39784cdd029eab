// Package travelparse extracts structured trip legs (country + date) from
// free-form travel email text using Google's Gemini API.
package travelparse

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

// TripLeg is one country/date pair extracted from a message. Date is
// "YYYY-MM-DD" or empty when the text gives no usable date.
type TripLeg struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	Date        string `json:"date"`
}

// Client represents a travel-text parsing client.
type Client struct {
	cache      CacheInterface
	logger     Logger
	apiKey     string
	model      string
	gcpProject string
}

// NewClient creates a new parser client. cache may be nil to disable
// response memoization.
func NewClient(apiKey, model, gcpProject string, cache CacheInterface, logger Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		model:      model,
		gcpProject: gcpProject,
		cache:      cache,
		logger:     logger,
	}
}

// ParseTravelText extracts zero or more trip legs from text. An empty slice
// means the text is not recognizably about travel.
func (c *Client) ParseTravelText(ctx context.Context, text string) ([]TripLeg, error) {
	prompt := fmt.Sprintf(extractionPrompt, text)

	if legs, found := c.checkCache(prompt); found {
		return legs, nil
	}

	client, err := c.createClient(ctx)
	if err != nil {
		return nil, err
	}

	modelName, contents, genConfig := c.configureRequest(prompt)

	resp, err := c.generateWithRetry(ctx, client, modelName, contents, genConfig)
	if err != nil {
		return nil, err
	}

	return c.processResponseAndCache(resp, prompt)
}

// checkCache returns previously parsed legs for an identical prompt.
func (c *Client) checkCache(prompt string) ([]TripLeg, bool) {
	if c.cache == nil {
		return nil, false
	}

	cacheKey := fmt.Sprintf("travelparse:%s:%s", c.model, prompt)
	data, found := c.cache.APICall(cacheKey, []byte(prompt))
	if !found {
		return nil, false
	}

	var legs []TripLeg
	if err := json.Unmarshal(data, &legs); err != nil {
		c.logger.Debug("failed to unmarshal cached parse result", "error", err)
		return nil, false
	}
	c.logger.Debug("travel parse cache hit", "legs", len(legs))
	return legs, true
}

// createClient creates and configures the genai client.
func (c *Client) createClient(ctx context.Context) (*genai.Client, error) {
	var config *genai.ClientConfig

	if c.apiKey != "" {
		config = &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
			APIKey:  c.apiKey,
		}
	} else {
		config = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  c.projectID(),
			Location: "us-central1",
		}
		c.logger.Info("using Vertex AI with Application Default Credentials", "project", c.projectID())
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

func (c *Client) projectID() string {
	if c.gcpProject != "" {
		return c.gcpProject
	}
	if projectID := os.Getenv("GCP_PROJECT"); projectID != "" {
		return projectID
	}
	return os.Getenv("GOOGLE_CLOUD_PROJECT")
}

// configureRequest prepares the model, content, and generation configuration.
func (c *Client) configureRequest(prompt string) (string, []*genai.Content, *genai.GenerateContentConfig) {
	modelName := c.model
	if modelName == "" {
		modelName = "gemini-2.5-flash-lite"
	}
	modelName = strings.TrimPrefix(modelName, "models/")

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	maxTokens := int32(1000)
	temperature := float32(0.1)

	genConfig := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  maxTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}

	return modelName, contents, genConfig
}

// responseSchema constrains the model to an array of trip-leg objects.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"country_code": {
					Type:        genai.TypeString,
					Description: "ISO 3166-1 alpha-2 country code, uppercase (e.g. 'FR', 'JP')",
				},
				"country_name": {
					Type:        genai.TypeString,
					Description: "English short name of the country (e.g. 'France', 'Japan')",
				},
				"date": {
					Type:        genai.TypeString,
					Description: "Date the traveler is in the country, YYYY-MM-DD, or empty when unknown",
				},
			},
			PropertyOrdering: []string{"country_code", "country_name", "date"},
			Required:         []string{"country_code", "country_name"},
		},
	}
}

// generateWithRetry executes the API call with retry on transient errors.
func (c *Client) generateWithRetry(ctx context.Context, client *genai.Client, modelName string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond
	jitter := 50 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := client.Models.GenerateContent(ctx, modelName, contents, config)
		if err == nil {
			return resp, nil
		}

		if attempt == maxRetries {
			return nil, fmt.Errorf("travel parse API call failed after %d attempts: %w", maxRetries+1, err)
		}
		if !isTransientError(err) {
			return nil, fmt.Errorf("non-transient travel parse API error: %w", err)
		}

		delay := baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(rand.Int64N(int64(jitter)))
		c.logger.Debug("retrying travel parse API call", "attempt", attempt+1, "delay_ms", delay.Milliseconds(), "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("unexpected end of retry loop")
}

func isTransientError(err error) bool {
	errStr := strings.ToLower(err.Error())
	transientIndicators := []string{
		"rate limit", "quota", "timeout", "deadline", "unavailable",
		"internal server error", "502", "503", "504",
	}
	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// processResponseAndCache validates the response, decodes the legs, and
// memoizes the result.
func (c *Client) processResponseAndCache(resp *genai.GenerateContentResponse, prompt string) ([]TripLeg, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from travel parse API")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("no content in travel parse response")
	}

	text := candidate.Content.Parts[0].Text
	if text == "" {
		return nil, fmt.Errorf("empty text in travel parse response")
	}

	legs, err := decodeLegs(text)
	if err != nil {
		c.logger.Warn("failed to parse travel parse response", "error", err, "response_text", text)
		return nil, err
	}

	if c.cache != nil {
		cacheKey := fmt.Sprintf("travelparse:%s:%s", c.model, prompt)
		if data, err := json.Marshal(legs); err == nil {
			if err := c.cache.SetAPICall(cacheKey, []byte(prompt), data); err != nil {
				c.logger.Debug("failed to cache travel parse result", "error", err)
			}
		}
	}

	return legs, nil
}

// decodeLegs decodes a JSON array of legs from model output, tolerating
// fenced code blocks and surrounding prose, and drops entries without a
// usable country code.
func decodeLegs(text string) ([]TripLeg, error) {
	jsonText, err := extractJSONArray(text)
	if err != nil {
		return nil, err
	}

	var raw []TripLeg
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode trip legs: %w", err)
	}

	legs := make([]TripLeg, 0, len(raw))
	for _, leg := range raw {
		leg.CountryCode = strings.ToUpper(strings.TrimSpace(leg.CountryCode))
		leg.CountryName = strings.TrimSpace(leg.CountryName)
		leg.Date = strings.TrimSpace(leg.Date)
		if len(leg.CountryCode) != 2 || leg.CountryName == "" {
			continue
		}
		if leg.Date != "" {
			if _, err := time.Parse("2006-01-02", leg.Date); err != nil {
				leg.Date = ""
			}
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

// extractJSONArray extracts a JSON array from a response that may contain
// explanatory text or code fences.
func extractJSONArray(text string) (string, error) {
	text = strings.TrimSpace(text)
	if isValidJSONArray(text) {
		return text, nil
	}

	if start := strings.Index(text, "```json"); start != -1 {
		start += 7
		if end := strings.Index(text[start:], "```"); end != -1 {
			jsonText := strings.TrimSpace(text[start : start+end])
			if isValidJSONArray(jsonText) {
				return jsonText, nil
			}
		}
	}

	if start := strings.Index(text, "["); start != -1 {
		if end := strings.LastIndex(text, "]"); end > start {
			jsonText := strings.TrimSpace(text[start : end+1])
			if isValidJSONArray(jsonText) {
				return jsonText, nil
			}
		}
	}

	return "", fmt.Errorf("no valid JSON array found in response")
}

func isValidJSONArray(s string) bool {
	var arr []any
	return json.Unmarshal([]byte(s), &arr) == nil
}
