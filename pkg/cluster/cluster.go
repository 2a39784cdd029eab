// Package cluster groups normalized evidence by country and partitions each
// country's evidence into date-contiguous runs that become trip candidates.
package cluster

import (
	"sort"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/evidence"
)

const (
	// MaxGapDays is the largest day gap that still counts as one continuous
	// visit. Evidence more than this many days apart breaks continuity.
	MaxGapDays = 2

	// MaxTripDays caps the total span of a single run so sparse long-tailed
	// evidence cannot merge into a months-long "trip".
	MaxTripDays = 30
)

// Bucket holds all evidence for one country, in input order.
type Bucket struct {
	Code  string
	Name  string
	Items []evidence.Item
}

// Run is one date-contiguous stretch of evidence within a country.
type Run struct {
	Start time.Time
	End   time.Time
	Items []evidence.Item
}

// ByCountry partitions items by country code, preserving relative order
// within each bucket and first-seen order across buckets. Every item lands
// in exactly one bucket.
func ByCountry(items []evidence.Item) []Bucket {
	index := make(map[string]int)
	var buckets []Bucket
	for _, it := range items {
		code := it.CountryCode()
		i, ok := index[code]
		if !ok {
			i = len(buckets)
			index[code] = i
			buckets = append(buckets, Bucket{Code: code, Name: it.CountryName()})
		}
		buckets[i].Items = append(buckets[i].Items, it)
	}
	return buckets
}

// Runs partitions one country's evidence into date-contiguous runs. Items
// without a date cannot anchor a run; they are returned separately so the
// caller can decide what to do when they are a country's only evidence.
//
// Both thresholds are inclusive: a gap of exactly MaxGapDays or a span of
// exactly MaxTripDays still extends the current run.
func Runs(items []evidence.Item) (runs []Run, undated []evidence.Item) {
	var dated []evidence.Item
	for _, it := range items {
		if it.Dated() {
			dated = append(dated, it)
		} else {
			undated = append(undated, it)
		}
	}
	if len(dated) == 0 {
		return nil, undated
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Date().Before(dated[j].Date())
	})

	cur := Run{Start: dated[0].Date(), End: dated[0].Date(), Items: []evidence.Item{dated[0]}}
	for _, it := range dated[1:] {
		d := it.Date()
		gap := daysBetween(cur.End, d)
		span := daysBetween(cur.Start, d)
		if gap <= MaxGapDays && span <= MaxTripDays {
			cur.Items = append(cur.Items, it)
			if d.After(cur.End) {
				cur.End = d
			}
			continue
		}
		runs = append(runs, cur)
		cur = Run{Start: d, End: d, Items: []evidence.Item{it}}
	}
	runs = append(runs, cur)
	return runs, undated
}

// daysBetween returns whole days from a to b. Dates are midnight UTC so the
// division is exact.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
