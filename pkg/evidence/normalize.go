package evidence

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Capture timestamp layouts seen in photo metadata exports.
var captureLayouts = []string{
	time.RFC3339,
	"2006:01:02 15:04:05", // EXIF DateTimeOriginal
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Albums that hold incidental travel paperwork rather than on-the-ground
// photos: receipts, screenshots, scanned tickets and the like.
var transitAlbumRegex = regexp.MustCompile(`(?i)\b(receipts?|screenshots?|scans?|documents?|tickets?|boarding)\b`)

// ParseCaptureTime parses a raw capture timestamp. The second return value
// is false when no known layout matches; that is not an error, the photo
// simply has no usable date.
func ParseCaptureTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range captureLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// LocalDate shifts a capture instant by the item's own UTC offset in minutes
// and truncates to the calendar date in that local zone. The returned date
// is midnight UTC so date arithmetic stays exact.
func LocalDate(ts time.Time, offsetMinutes int) time.Time {
	local := ts.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsTransitAlbum reports whether an album name looks like a receipts or
// screenshots bucket, signaling a layover/transaction photo.
func IsTransitAlbum(album string) bool {
	return transitAlbumRegex.MatchString(album)
}

// Snippet truncates text to at most max runes for display, collapsing
// whitespace runs to single spaces.
func Snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
