// Package evidence defines the normalized evidence shapes that feed trip
// suggestion generation: geotagged photos and parsed travel emails reduced
// to a common (date, country) form.
package evidence

import "time"

// Photo is one geotagged photo resolved to a country.
// A zero Date means the capture timestamp was absent or unparsable; the
// photo still counts as country-level evidence.
type Photo struct {
	Date         time.Time `json:"date,omitempty"`
	ID           string    `json:"id"`
	CountryCode  string    `json:"country_code"`
	CountryName  string    `json:"country_name"`
	Album        string    `json:"album,omitempty"`
	ThumbnailRef string    `json:"thumbnail_ref,omitempty"`
	Transit      bool      `json:"transit,omitempty"`
}

// Email is one travel-related leg extracted from an email message.
// A single message can yield multiple Email items, one per referenced leg.
type Email struct {
	Date        time.Time `json:"date,omitempty"`
	ID          string    `json:"id"`
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name"`
	Subject     string    `json:"subject,omitempty"`
	Snippet     string    `json:"snippet,omitempty"`
	Folder      string    `json:"folder,omitempty"`
}

// Item is the union of the two evidence variants. Exactly one of Photo or
// Email is non-nil.
type Item struct {
	Photo *Photo
	Email *Email
}

// Date returns the item's calendar date, zero when unknown.
func (it Item) Date() time.Time {
	if it.Photo != nil {
		return it.Photo.Date
	}
	return it.Email.Date
}

// Dated reports whether the item carries a usable calendar date.
func (it Item) Dated() bool {
	return !it.Date().IsZero()
}

// CountryCode returns the resolved ISO country code.
func (it Item) CountryCode() string {
	if it.Photo != nil {
		return it.Photo.CountryCode
	}
	return it.Email.CountryCode
}

// CountryName returns the resolved country display name.
func (it Item) CountryName() string {
	if it.Photo != nil {
		return it.Photo.CountryName
	}
	return it.Email.CountryName
}
