// Package trip defines trip candidates and the cross-country correlation
// that links candidates whose date ranges suggest one multi-leg journey.
package trip

import (
	"fmt"
	"strings"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/evidence"
)

// Candidate is one proposed trip inferred from clustered evidence. Candidates
// are transient: generated fresh on every scan and held only until the user
// accepts or rejects them.
type Candidate struct {
	Start            time.Time        `json:"start_date,omitempty"`
	End              time.Time        `json:"end_date,omitempty"`
	ID               string           `json:"id"`
	CountryCode      string           `json:"country_code"`
	CountryName      string           `json:"country_name"`
	SourceLabel      string           `json:"source_label"`
	Photos           []evidence.Photo `json:"photos,omitempty"`
	Emails           []evidence.Email `json:"emails,omitempty"`
	RelatedCountries []string         `json:"related_countries,omitempty"`
	Confidence       float64          `json:"confidence"`
}

// Dated reports whether the candidate has usable start/end dates.
func (c *Candidate) Dated() bool {
	return !c.Start.IsZero() && !c.End.IsZero()
}

// Correlate cross-links candidates in different countries whose date ranges
// overlap or abut within one day. The relation is recorded symmetrically on
// both candidates; the candidates themselves are never merged.
func Correlate(cands []Candidate) {
	for i := range cands {
		for j := range cands {
			if i == j {
				continue
			}
			a, b := &cands[i], &cands[j]
			if !a.Dated() || !b.Dated() {
				continue
			}
			if a.CountryName == b.CountryName {
				continue
			}
			if rangesLinked(a, b) {
				a.RelatedCountries = appendUnique(a.RelatedCountries, b.CountryName)
			}
		}
	}
}

// rangesLinked reports whether the two date ranges overlap or are adjacent
// within one day in either direction.
func rangesLinked(a, b *Candidate) bool {
	if !a.Start.After(b.End) && !b.Start.After(a.End) {
		return true
	}
	return absDays(a.Start, b.End) <= 1 || absDays(b.Start, a.End) <= 1
}

func absDays(x, y time.Time) int {
	d := int(y.Sub(x) / (24 * time.Hour))
	if d < 0 {
		return -d
	}
	return d
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}

// SourceLabel summarizes a candidate's evidence mix for display, e.g.
// "3 photos, 1 email".
func SourceLabel(photos []evidence.Photo, emails []evidence.Email) string {
	var parts []string
	if n := len(photos); n > 0 {
		parts = append(parts, plural(n, "photo"))
	}
	if n := len(emails); n > 0 {
		parts = append(parts, plural(n, "email"))
	}
	if len(parts) == 0 {
		return "no evidence"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
