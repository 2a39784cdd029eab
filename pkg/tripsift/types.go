package tripsift

import (
	"context"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/geocode"
	"github.com/tripsift-dev/tripsift/pkg/kvstore"
	"github.com/tripsift-dev/tripsift/pkg/travelparse"
	"github.com/tripsift-dev/tripsift/pkg/trip"
)

// Candidate is re-exported so callers of Scan need not import pkg/trip.
type Candidate = trip.Candidate

// ScanOptions control which evidence sources run and which evidence is
// filtered out before any external call is made.
type ScanOptions struct {
	IncludePhotos   bool
	IncludeEmails   bool
	ExcludedAlbums  []string
	ExcludedFolders []string
	// HomeCountryCode excludes evidence resolving to the user's home
	// country: trips at home don't count. Empty disables the filter.
	HomeCountryCode string
}

// Summary reports how much work a scan did.
type Summary struct {
	PhotosScanned  int `json:"photos_scanned"`
	EmailsScanned  int `json:"emails_scanned"`
	TripsSuggested int `json:"trips_suggested"`
}

// Result is the outcome of one full scan.
type Result struct {
	Suggestions []Candidate `json:"suggestions"`
	Summary     Summary     `json:"summary"`
}

// Step identifies a scan phase for progress reporting.
type Step string

// Scan phases, reported in this order.
const (
	StepSetup    Step = "setup"
	StepPhotos   Step = "photo-scan"
	StepEmails   Step = "email-scan"
	StepCombine  Step = "combine"
	StepComplete Step = "complete"
)

// ProgressFunc receives incremental scan progress: the current phase, a
// 0-100 percent within that phase, and a display message.
type ProgressFunc func(step Step, percent int, message string)

// Location is a GPS coordinate pair from photo metadata.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// PhotoAsset is a raw photo as delivered by the photo library: possibly
// without GPS, possibly with an unparsable capture timestamp.
type PhotoAsset struct {
	Location        *Location `json:"location,omitempty"`
	ID              string    `json:"id"`
	CapturedAt      string    `json:"captured_at,omitempty"`
	Album           string    `json:"album,omitempty"`
	ThumbnailRef    string    `json:"thumbnail_ref,omitempty"`
	TZOffsetMinutes int       `json:"tz_offset_minutes,omitempty"`
}

// EmailMessage is a raw email as delivered by the mail source. Body may be
// plain text or HTML.
type EmailMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
	Folder  string `json:"folder,omitempty"`
}

// PhotoSource lists the photo assets to scan.
type PhotoSource interface {
	Photos(ctx context.Context) ([]PhotoAsset, error)
}

// EmailSource lists the email messages to scan.
type EmailSource interface {
	Messages(ctx context.Context) ([]EmailMessage, error)
}

// Geocoder resolves coordinates to a country. A nil country with a nil
// error means the service found nothing there.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*geocode.Country, error)
}

// TravelParser extracts trip legs from free email text.
type TravelParser interface {
	ParseTravelText(ctx context.Context, text string) ([]travelparse.TripLeg, error)
}

// Option configures a Scanner.
type Option func(*OptionHolder)

// WithMapsAPIKey sets the Google Maps API key for reverse geocoding.
func WithMapsAPIKey(key string) Option {
	return func(o *OptionHolder) { o.mapsAPIKey = key }
}

// WithGeminiAPIKey sets the Gemini API key for travel-text parsing.
func WithGeminiAPIKey(key string) Option {
	return func(o *OptionHolder) { o.geminiAPIKey = key }
}

// WithGeminiModel overrides the Gemini model used for parsing.
func WithGeminiModel(model string) Option {
	return func(o *OptionHolder) { o.geminiModel = model }
}

// WithGCPProject sets the GCP project for Vertex AI credentials.
func WithGCPProject(projectID string) Option {
	return func(o *OptionHolder) { o.gcpProject = projectID }
}

// WithCacheDir stores the response cache on disk under dir.
func WithCacheDir(dir string) Option {
	return func(o *OptionHolder) { o.cacheDir = dir }
}

// WithNoCache disables the external-response cache entirely.
func WithNoCache() Option {
	return func(o *OptionHolder) { o.noCache = true }
}

// WithStore backs the suggestion cache with the given key-value store
// instead of the default in-memory one.
func WithStore(store kvstore.Store) Option {
	return func(o *OptionHolder) { o.store = store }
}

// WithGeocoder injects a reverse geocoder, replacing the API-backed one.
func WithGeocoder(g Geocoder) Option {
	return func(o *OptionHolder) { o.geocoder = g }
}

// WithParser injects a travel-text parser, replacing the Gemini-backed one.
func WithParser(p TravelParser) Option {
	return func(o *OptionHolder) { o.parser = p }
}

// WithPhotoSource sets the photo library to scan.
func WithPhotoSource(src PhotoSource) Option {
	return func(o *OptionHolder) { o.photos = src }
}

// WithEmailSource sets the mailbox to scan.
func WithEmailSource(src EmailSource) Option {
	return func(o *OptionHolder) { o.emails = src }
}

// WithGeocodeInterval overrides the pacing between reverse-geocode calls.
// Zero or negative disables pacing.
func WithGeocodeInterval(d time.Duration) Option {
	return func(o *OptionHolder) {
		o.geocodeInterval = d
		o.geocodeIntervalSet = true
	}
}

// OptionHolder holds configuration options.
type OptionHolder struct {
	store              kvstore.Store
	geocoder           Geocoder
	parser             TravelParser
	photos             PhotoSource
	emails             EmailSource
	mapsAPIKey         string
	geminiAPIKey       string
	geminiModel        string
	gcpProject         string
	cacheDir           string
	geocodeInterval    time.Duration
	geocodeIntervalSet bool
	noCache            bool
}
