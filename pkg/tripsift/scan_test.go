package tripsift

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/geocode"
	"github.com/tripsift-dev/tripsift/pkg/travelparse"
)

type fakePhotoSource struct {
	assets []PhotoAsset
	err    error
}

func (f *fakePhotoSource) Photos(_ context.Context) ([]PhotoAsset, error) {
	return f.assets, f.err
}

type fakeEmailSource struct {
	messages []EmailMessage
	err      error
}

func (f *fakeEmailSource) Messages(_ context.Context) ([]EmailMessage, error) {
	return f.messages, f.err
}

// fakeGeocoder maps "lat,lng" to a fixed country and counts calls.
type fakeGeocoder struct {
	countries map[string]*geocode.Country
	calls     int
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, lat, lng float64) (*geocode.Country, error) {
	f.calls++
	key := coordKey(lat, lng)
	if c, ok := f.countries[key]; ok {
		return c, nil
	}
	return nil, nil
}

func coordKey(lat, lng float64) string {
	switch {
	case lat > 40 && lat < 50 && lng > 0 && lng < 10:
		return "fr"
	case lat > 30 && lat < 40 && lng > 130:
		return "jp"
	case lat > 50:
		return "gb"
	default:
		return "?"
	}
}

type fakeParser struct {
	legs  map[string][]travelparse.TripLeg
	err   error
	calls int
}

func (f *fakeParser) ParseTravelText(_ context.Context, text string) ([]travelparse.TripLeg, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	lower := strings.ToLower(text)
	for marker, legs := range f.legs {
		if marker != "" && strings.Contains(lower, marker) {
			return legs, nil
		}
	}
	return nil, nil
}

var (
	france = &geocode.Country{Code: "FR", Name: "France"}
	japan  = &geocode.Country{Code: "JP", Name: "Japan"}
	uk     = &geocode.Country{Code: "GB", Name: "United Kingdom"}
)

func newTestScanner(t *testing.T, opts ...Option) *Scanner {
	t.Helper()
	base := []Option{WithNoCache(), WithGeocodeInterval(0)}
	s := NewWithLogger(context.Background(), slog.Default(), append(base, opts...)...)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func franceAssets() []PhotoAsset {
	paris := &Location{Latitude: 48.85, Longitude: 2.35}
	return []PhotoAsset{
		{ID: "p1", Location: paris, CapturedAt: "2024-06-16T10:00:00Z"},
		{ID: "p2", Location: paris, CapturedAt: "2024-06-17T18:30:00Z"},
		{ID: "p3", Location: paris, CapturedAt: "2024-06-19T09:15:00Z"},
	}
}

func TestScanFranceWeek(t *testing.T) {
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}
	parser := &fakeParser{legs: map[string][]travelparse.TripLeg{
		"hotel du louvre": {{CountryCode: "FR", CountryName: "France", Date: "2024-06-18"}},
	}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: franceAssets()}),
		WithEmailSource(&fakeEmailSource{messages: []EmailMessage{
			{ID: "m1", Subject: "Booking confirmed: Hotel du Louvre", Body: "See you on 2024-06-18."},
		}}),
		WithGeocoder(geocoder),
		WithParser(parser),
	)

	result, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true, IncludeEmails: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(result.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1: %+v", len(result.Suggestions), result.Suggestions)
	}
	c := result.Suggestions[0]
	if c.CountryCode != "FR" {
		t.Errorf("country = %s, want FR", c.CountryCode)
	}
	wantStart := time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 6, 19, 0, 0, 0, 0, time.UTC)
	if !c.Start.Equal(wantStart) || !c.End.Equal(wantEnd) {
		t.Errorf("range = %v..%v, want %v..%v", c.Start, c.End, wantStart, wantEnd)
	}
	if len(c.Photos) != 3 || len(c.Emails) != 1 {
		t.Errorf("evidence = %d photos, %d emails, want 3 and 1", len(c.Photos), len(c.Emails))
	}
	if c.SourceLabel != "3 photos, 1 email" {
		t.Errorf("source label = %q", c.SourceLabel)
	}
	// 0.35 base + 0.30 photo + 0.25 email + 0.10 both = 1.00, clamped.
	if c.Confidence != 0.98 {
		t.Errorf("confidence = %v, want 0.98", c.Confidence)
	}
	if result.Summary.PhotosScanned != 3 || result.Summary.EmailsScanned != 1 || result.Summary.TripsSuggested != 1 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestScanSplitsDistantVisits(t *testing.T) {
	osaka := &Location{Latitude: 34.69, Longitude: 135.5}
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"jp": japan}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: []PhotoAsset{
			{ID: "p1", Location: osaka, CapturedAt: "2024-03-28T12:00:00Z"},
			{ID: "p2", Location: osaka, CapturedAt: "2024-04-05T12:00:00Z"},
		}}),
		WithGeocoder(geocoder),
	)

	result, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2 separate visits", len(result.Suggestions))
	}
	for _, c := range result.Suggestions {
		if c.CountryCode != "JP" {
			t.Errorf("country = %s, want JP", c.CountryCode)
		}
		if !c.Start.Equal(c.End) {
			t.Errorf("single-photo visit has range %v..%v", c.Start, c.End)
		}
	}
	if result.Suggestions[0].ID == result.Suggestions[1].ID {
		t.Error("candidate IDs collide")
	}
}

func TestScanExcludesHomeCountry(t *testing.T) {
	london := &Location{Latitude: 51.5, Longitude: -0.12}
	paris := &Location{Latitude: 48.85, Longitude: 2.35}
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"gb": uk, "fr": france}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: []PhotoAsset{
			{ID: "home1", Location: london, CapturedAt: "2024-05-01T12:00:00Z"},
			{ID: "away1", Location: paris, CapturedAt: "2024-05-03T12:00:00Z"},
		}}),
		WithGeocoder(geocoder),
	)

	result, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true, HomeCountryCode: "gb"}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Suggestions) != 1 || result.Suggestions[0].CountryCode != "FR" {
		t.Fatalf("suggestions = %+v, want only France", result.Suggestions)
	}
	// The home photo was still examined.
	if result.Summary.PhotosScanned != 2 {
		t.Errorf("photos scanned = %d, want 2", result.Summary.PhotosScanned)
	}
}

func TestScanExcludedAlbumSkipsGeocode(t *testing.T) {
	paris := &Location{Latitude: 48.85, Longitude: 2.35}
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: []PhotoAsset{
			{ID: "p1", Location: paris, CapturedAt: "2024-06-16T10:00:00Z", Album: "Receipts"},
		}}),
		WithGeocoder(geocoder),
	)

	result, err := s.Scan(context.Background(), ScanOptions{
		IncludePhotos:  true,
		ExcludedAlbums: []string{"receipts"},
	}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if geocoder.calls != 0 {
		t.Errorf("geocoder called %d times for excluded album, want 0", geocoder.calls)
	}
	if len(result.Suggestions) != 0 {
		t.Errorf("suggestions = %+v, want none", result.Suggestions)
	}
}

func TestScanFailOpenOnGeocodeMiss(t *testing.T) {
	// One photo resolves, the other has no country at its location.
	paris := &Location{Latitude: 48.85, Longitude: 2.35}
	ocean := &Location{Latitude: 0, Longitude: -30}
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: []PhotoAsset{
			{ID: "p1", Location: ocean, CapturedAt: "2024-06-16T10:00:00Z"},
			{ID: "p2", Location: paris, CapturedAt: "2024-06-17T10:00:00Z"},
		}}),
		WithGeocoder(geocoder),
	)

	result, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Suggestions) != 1 || result.Suggestions[0].CountryCode != "FR" {
		t.Fatalf("suggestions = %+v, want France only", result.Suggestions)
	}
}

func TestScanNoSources(t *testing.T) {
	s := newTestScanner(t)
	if _, err := s.Scan(context.Background(), ScanOptions{}, nil); !errors.Is(err, ErrNoSources) {
		t.Errorf("err = %v, want ErrNoSources", err)
	}
}

func TestScanSourceListingFailureIsFatal(t *testing.T) {
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{err: errors.New("library locked")}),
	)
	if _, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil); err == nil {
		t.Error("expected error when photo listing fails")
	}
}

func TestScanProgressOrder(t *testing.T) {
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: franceAssets()}),
		WithEmailSource(&fakeEmailSource{messages: []EmailMessage{
			{ID: "m1", Subject: "Newsletter", Body: "Nothing travel related."},
		}}),
		WithGeocoder(geocoder),
		WithParser(&fakeParser{}),
	)

	var steps []Step
	onProgress := func(step Step, _ int, _ string) {
		if len(steps) == 0 || steps[len(steps)-1] != step {
			steps = append(steps, step)
		}
	}

	if _, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true, IncludeEmails: true}, onProgress); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	want := []Step{StepSetup, StepPhotos, StepEmails, StepCombine, StepComplete}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("steps = %v, want %v", steps, want)
		}
	}
}

func TestScanServesCachedResult(t *testing.T) {
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: franceAssets()}),
		WithGeocoder(geocoder),
	)

	opts := ScanOptions{IncludePhotos: true}
	first, err := s.Scan(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	callsAfterFirst := geocoder.calls

	second, err := s.Scan(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if geocoder.calls != callsAfterFirst {
		t.Errorf("geocoder called again on cached scan: %d -> %d", callsAfterFirst, geocoder.calls)
	}
	if len(second.Suggestions) != len(first.Suggestions) {
		t.Errorf("cached result differs: %d vs %d suggestions", len(second.Suggestions), len(first.Suggestions))
	}

	// Changing an option that affects the result misses the cache.
	if _, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true, HomeCountryCode: "fr"}, nil); err != nil {
		t.Fatalf("third Scan: %v", err)
	}
	if geocoder.calls == callsAfterFirst {
		t.Error("expected rescan when options change")
	}
}

func TestScanIdempotentAcrossRuns(t *testing.T) {
	newScanner := func() *Scanner {
		return newTestScanner(t,
			WithPhotoSource(&fakePhotoSource{assets: franceAssets()}),
			WithGeocoder(&fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}),
		)
	}

	a, err := newScanner().Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	b, err := newScanner().Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(a.Suggestions) != len(b.Suggestions) {
		t.Fatalf("suggestion counts differ: %d vs %d", len(a.Suggestions), len(b.Suggestions))
	}
	for i := range a.Suggestions {
		x, y := a.Suggestions[i], b.Suggestions[i]
		if x.CountryCode != y.CountryCode || !x.Start.Equal(y.Start) || !x.End.Equal(y.End) || x.Confidence != y.Confidence {
			t.Errorf("suggestion %d differs (ignoring IDs): %+v vs %+v", i, x, y)
		}
	}
}

func TestScanCorrelatesAdjacentCountries(t *testing.T) {
	paris := &Location{Latitude: 48.85, Longitude: 2.35}
	london := &Location{Latitude: 51.5, Longitude: -0.12}
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france, "gb": uk}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: []PhotoAsset{
			{ID: "p1", Location: paris, CapturedAt: "2024-06-16T10:00:00Z"},
			{ID: "p2", Location: paris, CapturedAt: "2024-06-17T10:00:00Z"},
			{ID: "p3", Location: london, CapturedAt: "2024-06-18T10:00:00Z"},
		}}),
		WithGeocoder(geocoder),
	)

	result, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Suggestions) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(result.Suggestions))
	}
	for _, c := range result.Suggestions {
		if len(c.RelatedCountries) != 1 {
			t.Errorf("%s related = %v, want one linked country", c.CountryCode, c.RelatedCountries)
		}
	}
}

func TestScanUndatedOnlyCountry(t *testing.T) {
	paris := &Location{Latitude: 48.85, Longitude: 2.35}
	geocoder := &fakeGeocoder{countries: map[string]*geocode.Country{"fr": france}}
	s := newTestScanner(t,
		WithPhotoSource(&fakePhotoSource{assets: []PhotoAsset{
			{ID: "p1", Location: paris},
			{ID: "p2", Location: paris, CapturedAt: "not a timestamp"},
		}}),
		WithGeocoder(geocoder),
	)

	result, err := s.Scan(context.Background(), ScanOptions{IncludePhotos: true}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(result.Suggestions) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(result.Suggestions))
	}
	c := result.Suggestions[0]
	if !c.Start.IsZero() || !c.End.IsZero() {
		t.Errorf("undated candidate has dates: %v..%v", c.Start, c.End)
	}
	if c.Confidence != 0.15 {
		t.Errorf("confidence = %v, want floor", c.Confidence)
	}
}
