// Package tripsift turns noisy trip evidence (geotagged photos, travel
// emails) into deduplicated, confidence-scored trip suggestions a user can
// accept or reject.
package tripsift

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/tripsift-dev/tripsift/pkg/geocode"
	"github.com/tripsift-dev/tripsift/pkg/httpcache"
	"github.com/tripsift-dev/tripsift/pkg/kvstore"
	"github.com/tripsift-dev/tripsift/pkg/suggest"
	"github.com/tripsift-dev/tripsift/pkg/travelparse"
)

// geocodeInterval paces reverse-geocode calls to respect the geocoding
// service's rate limit: one request per 1.1 seconds after the first.
const geocodeInterval = 1100 * time.Millisecond

// responseCacheTTL bounds how long raw geocode/parse responses are reused.
const responseCacheTTL = 14 * 24 * time.Hour

// Scanner runs trip-suggestion scans. Construct with New or NewWithLogger;
// a single Scanner expects one active scan at a time.
type Scanner struct {
	logger      *slog.Logger
	httpClient  *http.Client
	respCache   *httpcache.Cache
	suggestions *suggest.Cache
	geocoder    Geocoder
	parser      TravelParser
	photos      PhotoSource
	emails      EmailSource
	limiter     *rate.Limiter
	entropy     io.Reader
	mapsAPIKey  string
}

// New creates a new Scanner with the default logger.
func New(ctx context.Context, opts ...Option) *Scanner {
	return NewWithLogger(ctx, slog.Default(), opts...)
}

// NewWithLogger creates a new Scanner with a custom logger.
func NewWithLogger(ctx context.Context, logger *slog.Logger, opts ...Option) *Scanner {
	optHolder := &OptionHolder{}
	for _, opt := range opts {
		opt(optHolder)
	}

	var respCache *httpcache.Cache
	switch {
	case optHolder.noCache:
		logger.Info("response caching disabled")
	case optHolder.cacheDir != "":
		var err error
		respCache, err = httpcache.New(ctx, optHolder.cacheDir, responseCacheTTL, logger)
		if err != nil {
			logger.Warn("response cache initialization failed", "error", err, "cache_dir", optHolder.cacheDir)
		}
	default:
		if userCacheDir, err := os.UserCacheDir(); err == nil {
			dir := filepath.Join(userCacheDir, "tripsift")
			respCache, err = httpcache.New(ctx, dir, responseCacheTTL, logger)
			if err != nil {
				logger.Warn("response cache initialization failed", "error", err, "cache_dir", dir)
				respCache = nil
			}
		} else {
			logger.Debug("could not determine user cache directory", "error", err)
		}
	}

	store := optHolder.store
	if store == nil {
		store = kvstore.NewMemoryStore()
	}

	interval := geocodeInterval
	if optHolder.geocodeIntervalSet {
		interval = optHolder.geocodeInterval
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	s := &Scanner{
		logger:      logger,
		respCache:   respCache,
		suggestions: suggest.New(store, suggest.DefaultTTL, logger),
		geocoder:    optHolder.geocoder,
		parser:      optHolder.parser,
		photos:      optHolder.photos,
		emails:      optHolder.emails,
		mapsAPIKey:  optHolder.mapsAPIKey,
		limiter:     rate.NewLimiter(limit, 1),
		entropy:     ulid.Monotonic(rand.Reader, 0),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	if s.parser == nil && optHolder.geminiAPIKey != "" {
		var parseCache travelparse.CacheInterface
		if respCache != nil {
			parseCache = respCache
		}
		s.parser = travelparse.NewClient(optHolder.geminiAPIKey, optHolder.geminiModel, optHolder.gcpProject, parseCache, logger)
	}

	return s
}

// Close shuts down the scanner, flushing the response cache to disk.
func (s *Scanner) Close() error {
	if s.respCache != nil {
		return s.respCache.Close()
	}
	return nil
}

// reverseGeocode resolves coordinates via the injected geocoder, or the
// API-backed client routed through the caching HTTP layer.
func (s *Scanner) reverseGeocode(ctx context.Context, lat, lng float64) (*geocode.Country, error) {
	if s.geocoder != nil {
		return s.geocoder.ReverseGeocode(ctx, lat, lng)
	}
	client := geocode.NewClient(s.mapsAPIKey, &httpClientWrapper{scanner: s, ctx: ctx}, s.logger)
	return client.ReverseGeocode(ctx, lat, lng)
}

// httpClientWrapper adapts the Scanner's cached, retrying HTTP path to the
// plain Do interface the geocode client expects.
type httpClientWrapper struct {
	scanner *Scanner
	ctx     context.Context
}

func (h *httpClientWrapper) Do(req *http.Request) (*http.Response, error) {
	return h.scanner.cachedHTTPDo(h.ctx, req)
}

// cachedHTTPDo performs an HTTP request through the response cache when one
// is configured.
func (s *Scanner) cachedHTTPDo(ctx context.Context, req *http.Request) (*http.Response, error) {
	if s.respCache == nil {
		return s.retryableHTTPDo(ctx, req)
	}
	client := httpcache.NewCachedClient(s.respCache, retryDoer{scanner: s, ctx: ctx}, s.logger)
	return client.Do(ctx, req)
}

type retryDoer struct {
	scanner *Scanner
	ctx     context.Context
}

func (d retryDoer) Do(req *http.Request) (*http.Response, error) {
	return d.scanner.retryableHTTPDo(d.ctx, req)
}

// retryableHTTPDo performs an HTTP request with exponential backoff and
// jitter. The returned response body must be closed by the caller.
func (s *Scanner) retryableHTTPDo(ctx context.Context, req *http.Request) (*http.Response, error) {
	deadline := time.Now().Add(15 * time.Second)
	var resp *http.Response
	var lastErr error

	err := retry.Do(
		func() error {
			if time.Now().After(deadline) {
				return retry.Unrecoverable(errors.New("timeout after 15 seconds"))
			}

			var err error
			resp, err = s.httpClient.Do(req.WithContext(ctx)) //nolint:bodyclose // Body closed on error, returned open on success for caller
			if err != nil {
				lastErr = err
				return err
			}

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
				body, readErr := io.ReadAll(resp.Body)
				closeErr := resp.Body.Close()
				if readErr != nil {
					s.logger.Debug("failed to read error response body", "error", readErr)
				}
				if closeErr != nil {
					s.logger.Debug("failed to close error response body", "error", closeErr)
				}
				lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
				return lastErr
			}

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(3*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(100*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying HTTP request",
				"attempt", n+1,
				"url", req.URL.String(),
				"error", err)
		}),
		retry.RetryIf(func(err error) bool {
			return err != nil && !time.Now().After(deadline)
		}),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, fmt.Errorf("request failed after retries: %w", lastErr)
	}

	return resp, nil
}

// newCandidateID builds a candidate ID unique per country, cluster index
// and generation time.
func (s *Scanner) newCandidateID(countryCode string, index int) string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	if err != nil {
		// Entropy exhaustion is effectively unreachable with crypto/rand.
		id = ulid.Make()
	}
	return fmt.Sprintf("%s-%d-%s", strings.ToLower(countryCode), index, id.String())
}
