// Package confidence scores trip candidates from their evidence mix. The
// score is a pure function of the candidate's evidence so identical input
// always produces identical output.
package confidence

import "github.com/tripsift-dev/tripsift/pkg/evidence"

const (
	base               = 0.35
	photoBonus         = 0.30
	emailBonus         = 0.25
	corroborationBonus = 0.10
	manyPhotosBonus    = 0.05
	manyEmailsBonus    = 0.05
	transitPenalty     = 0.15

	manyPhotosThreshold = 5
	manyEmailsThreshold = 2

	// Floor and Ceiling bound every score: never absolute zero, never
	// absolute certainty.
	Floor   = 0.15
	Ceiling = 0.98
)

// Score returns a confidence in [Floor, Ceiling] for a candidate built from
// the given evidence.
func Score(photos []evidence.Photo, emails []evidence.Email) float64 {
	score := base
	if len(photos) > 0 {
		score += photoBonus
	}
	if len(emails) > 0 {
		score += emailBonus
	}
	if len(photos) > 0 && len(emails) > 0 {
		score += corroborationBonus
	}
	if len(photos) >= manyPhotosThreshold {
		score += manyPhotosBonus
	}
	if len(emails) >= manyEmailsThreshold {
		score += manyEmailsBonus
	}
	if len(photos) > 0 && len(emails) == 0 && allTransit(photos) {
		score -= transitPenalty
	}
	return clamp(score)
}

func allTransit(photos []evidence.Photo) bool {
	for i := range photos {
		if !photos[i].Transit {
			return false
		}
	}
	return true
}

func clamp(score float64) float64 {
	if score < Floor {
		return Floor
	}
	if score > Ceiling {
		return Ceiling
	}
	return score
}
