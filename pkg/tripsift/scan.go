package tripsift

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/cluster"
	"github.com/tripsift-dev/tripsift/pkg/confidence"
	"github.com/tripsift-dev/tripsift/pkg/evidence"
	"github.com/tripsift-dev/tripsift/pkg/travelparse"
	"github.com/tripsift-dev/tripsift/pkg/trip"
)

// ErrNoSources is returned when a scan is requested with both evidence
// sources disabled.
var ErrNoSources = errors.New("no evidence sources enabled")

// snippetLength caps how much email body text is kept on each evidence item.
const snippetLength = 140

// Scan runs a full suggestion pass: collect evidence from the enabled
// sources, cluster it into per-country trip candidates, score and
// cross-correlate them. Results are served from the suggestion cache when an
// identical scan ran recently.
//
// Individual items that fail (unparsable photo, geocode error, parse error)
// are skipped with a log line; Scan itself fails only when no source is
// enabled or a source cannot be listed at all. onProgress may be nil.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions, onProgress ProgressFunc) (*Result, error) {
	if !opts.IncludePhotos && !opts.IncludeEmails {
		return nil, ErrNoSources
	}
	if onProgress == nil {
		onProgress = func(Step, int, string) {}
	}

	onProgress(StepSetup, 0, "Preparing scan")

	key := cacheKey(opts)
	if data, ok := s.suggestions.Get(key); ok {
		var cached Result
		if err := json.Unmarshal(data, &cached); err == nil {
			s.logger.Info("serving cached suggestions",
				"suggestions", len(cached.Suggestions))
			onProgress(StepComplete, 100, "Loaded recent suggestions")
			return &cached, nil
		}
		s.logger.Warn("cached suggestions unreadable, rescanning")
	}

	var items []evidence.Item
	var summary Summary

	if opts.IncludePhotos {
		photoItems, scanned, err := s.scanPhotos(ctx, opts, onProgress)
		if err != nil {
			return nil, fmt.Errorf("photo scan: %w", err)
		}
		items = append(items, photoItems...)
		summary.PhotosScanned = scanned
	}

	if opts.IncludeEmails {
		emailItems, scanned, err := s.scanEmails(ctx, opts, onProgress)
		if err != nil {
			return nil, fmt.Errorf("email scan: %w", err)
		}
		items = append(items, emailItems...)
		summary.EmailsScanned = scanned
	}

	onProgress(StepCombine, 0, "Combining evidence")

	suggestions := s.buildCandidates(items)
	trip.Correlate(suggestions)
	sortCandidates(suggestions)
	summary.TripsSuggested = len(suggestions)

	result := &Result{Suggestions: suggestions, Summary: summary}
	if data, err := json.Marshal(result); err == nil {
		s.suggestions.Set(key, data)
	} else {
		s.logger.Warn("failed to encode result for caching", "error", err)
	}

	onProgress(StepComplete, 100,
		fmt.Sprintf("Found %d trip suggestions", len(suggestions)))
	s.logger.Info("scan complete",
		"photos_scanned", summary.PhotosScanned,
		"emails_scanned", summary.EmailsScanned,
		"trips_suggested", summary.TripsSuggested)
	return result, nil
}

// cacheKey derives the suggestion-cache key from every option that changes
// the result. Exclusion lists are sorted so order does not defeat the cache.
func cacheKey(opts ScanOptions) string {
	albums := append([]string(nil), opts.ExcludedAlbums...)
	folders := append([]string(nil), opts.ExcludedFolders...)
	sort.Strings(albums)
	sort.Strings(folders)
	canonical := fmt.Sprintf("photos=%t|emails=%t|home=%s|albums=%s|folders=%s",
		opts.IncludePhotos, opts.IncludeEmails,
		strings.ToLower(opts.HomeCountryCode),
		strings.Join(albums, ","), strings.Join(folders, ","))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(canonical)))
}

// scanPhotos resolves every listed photo to a country, skipping excluded
// albums before any geocode call, and returns the evidence plus the count of
// assets examined.
func (s *Scanner) scanPhotos(ctx context.Context, opts ScanOptions, onProgress ProgressFunc) ([]evidence.Item, int, error) {
	onProgress(StepPhotos, 0, "Listing photo library")

	assets, err := s.photoAssets(ctx)
	if err != nil {
		return nil, 0, err
	}

	excluded := lowerSet(opts.ExcludedAlbums)
	home := strings.ToLower(opts.HomeCountryCode)

	var items []evidence.Item
	for i, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		switch {
		case excluded[strings.ToLower(asset.Album)]:
			s.logger.Debug("skipping photo in excluded album", "photo", asset.ID, "album", asset.Album)
		case asset.Location == nil:
			s.logger.Debug("skipping photo without location", "photo", asset.ID)
		default:
			if item, ok := s.photoEvidence(ctx, asset, home); ok {
				items = append(items, item)
			}
		}

		onProgress(StepPhotos, percent(i+1, len(assets)),
			fmt.Sprintf("Scanned %d of %d photos", i+1, len(assets)))
	}

	s.logger.Info("photo scan finished", "assets", len(assets), "evidence", len(items))
	return items, len(assets), nil
}

// photoAssets lists the photo library, tolerating an unconfigured source
// only when no photos were requested.
func (s *Scanner) photoAssets(ctx context.Context) ([]PhotoAsset, error) {
	if s.photos == nil {
		return nil, errors.New("no photo source configured")
	}
	assets, err := s.photos.Photos(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	return assets, nil
}

// photoEvidence converts one geotagged asset into an evidence item. Any
// failure skips the photo rather than aborting the scan.
func (s *Scanner) photoEvidence(ctx context.Context, asset PhotoAsset, home string) (evidence.Item, bool) {
	if err := s.limiter.Wait(ctx); err != nil {
		return evidence.Item{}, false
	}

	country, err := s.reverseGeocode(ctx, asset.Location.Latitude, asset.Location.Longitude)
	if err != nil {
		s.logger.Debug("reverse geocode failed, skipping photo", "photo", asset.ID, "error", err)
		return evidence.Item{}, false
	}
	if country == nil {
		s.logger.Debug("no country at photo location", "photo", asset.ID)
		return evidence.Item{}, false
	}
	if home != "" && strings.ToLower(country.Code) == home {
		return evidence.Item{}, false
	}

	photo := &evidence.Photo{
		ID:           asset.ID,
		CountryCode:  country.Code,
		CountryName:  country.Name,
		Album:        asset.Album,
		ThumbnailRef: asset.ThumbnailRef,
		Transit:      evidence.IsTransitAlbum(asset.Album),
	}
	if ts, ok := evidence.ParseCaptureTime(asset.CapturedAt); ok {
		photo.Date = evidence.LocalDate(ts, asset.TZOffsetMinutes)
	} else if asset.CapturedAt != "" {
		s.logger.Debug("unparsable capture time, keeping photo undated",
			"photo", asset.ID, "captured_at", asset.CapturedAt)
	}

	return evidence.Item{Photo: photo}, true
}

// scanEmails parses every listed message for trip legs, skipping excluded
// folders before any parse call, and returns the evidence plus the count of
// messages examined.
func (s *Scanner) scanEmails(ctx context.Context, opts ScanOptions, onProgress ProgressFunc) ([]evidence.Item, int, error) {
	onProgress(StepEmails, 0, "Listing mailbox")

	if s.emails == nil {
		return nil, 0, errors.New("no email source configured")
	}
	messages, err := s.emails.Messages(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing messages: %w", err)
	}

	excluded := lowerSet(opts.ExcludedFolders)
	home := strings.ToLower(opts.HomeCountryCode)

	var items []evidence.Item
	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		if excluded[strings.ToLower(msg.Folder)] {
			s.logger.Debug("skipping message in excluded folder", "message", msg.ID, "folder", msg.Folder)
		} else {
			items = append(items, s.emailEvidence(ctx, msg, home)...)
		}

		onProgress(StepEmails, percent(i+1, len(messages)),
			fmt.Sprintf("Scanned %d of %d messages", i+1, len(messages)))
	}

	s.logger.Info("email scan finished", "messages", len(messages), "evidence", len(items))
	return items, len(messages), nil
}

// emailEvidence extracts zero or more evidence items from one message: one
// per trip leg the parser finds. Parse failures skip the message.
func (s *Scanner) emailEvidence(ctx context.Context, msg EmailMessage, home string) []evidence.Item {
	if s.parser == nil {
		s.logger.Debug("no travel parser configured, skipping message", "message", msg.ID)
		return nil
	}

	text := travelparse.PlainText(msg.Body)
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + text
	}

	legs, err := s.parser.ParseTravelText(ctx, text)
	if err != nil {
		s.logger.Debug("travel parse failed, skipping message", "message", msg.ID, "error", err)
		return nil
	}

	var items []evidence.Item
	for _, leg := range legs {
		if home != "" && strings.ToLower(leg.CountryCode) == home {
			continue
		}
		email := &evidence.Email{
			ID:          msg.ID,
			CountryCode: leg.CountryCode,
			CountryName: leg.CountryName,
			Subject:     msg.Subject,
			Snippet:     evidence.Snippet(text, snippetLength),
			Folder:      msg.Folder,
		}
		if leg.Date != "" {
			if d, err := time.Parse("2006-01-02", leg.Date); err == nil {
				email.Date = d.UTC()
			}
		}
		items = append(items, evidence.Item{Email: email})
	}
	return items
}

// buildCandidates turns pooled evidence into scored per-country candidates.
// A country whose only evidence is undated still yields one candidate, with
// zero dates and floor confidence, so the user can confirm or dismiss it.
func (s *Scanner) buildCandidates(items []evidence.Item) []trip.Candidate {
	var cands []trip.Candidate
	for _, bucket := range cluster.ByCountry(items) {
		runs, undated := cluster.Runs(bucket.Items)

		for i, run := range runs {
			photos, emails := splitItems(run.Items)
			cands = append(cands, trip.Candidate{
				ID:          s.newCandidateID(bucket.Code, i),
				CountryCode: bucket.Code,
				CountryName: bucket.Name,
				Start:       run.Start,
				End:         run.End,
				Photos:      photos,
				Emails:      emails,
				SourceLabel: trip.SourceLabel(photos, emails),
				Confidence:  confidence.Score(photos, emails),
			})
		}

		if len(runs) == 0 && len(undated) > 0 {
			photos, emails := splitItems(undated)
			cands = append(cands, trip.Candidate{
				ID:          s.newCandidateID(bucket.Code, 0),
				CountryCode: bucket.Code,
				CountryName: bucket.Name,
				Photos:      photos,
				Emails:      emails,
				SourceLabel: trip.SourceLabel(photos, emails),
				Confidence:  confidence.Floor,
			})
		}
	}
	return cands
}

// sortCandidates orders suggestions for display: dated before undated, most
// recent trips first, country name as the tiebreak.
func sortCandidates(cands []trip.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := &cands[i], &cands[j]
		if a.Dated() != b.Dated() {
			return a.Dated()
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		return a.CountryName < b.CountryName
	})
}

func splitItems(items []evidence.Item) (photos []evidence.Photo, emails []evidence.Email) {
	for _, it := range items {
		if it.Photo != nil {
			photos = append(photos, *it.Photo)
		} else {
			emails = append(emails, *it.Email)
		}
	}
	return photos, emails
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}
