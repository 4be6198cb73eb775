// Package seating decides where a new attendee sits: which tent, which
// table, or whether a new table has to be opened. Everything here is pure;
// persistence and retries live in the service layer.
package seating

import "github.com/Shivanand-hulikatti/feast-seating/internal/model"

// BalanceScore returns the population variance of the per-gender head
// count of a table after seating a candidate of the given gender. Lower is
// better balanced. Attendees without a declared gender are not counted.
func BalanceScore(occupants []model.Gender, candidate model.Gender) float64 {
	counts := make(map[model.Gender]int, len(model.Genders))
	for _, g := range occupants {
		if g.Valid() {
			counts[g]++
		}
	}
	if candidate.Valid() {
		counts[candidate]++
	}

	total := 0
	for _, g := range model.Genders {
		total += counts[g]
	}
	n := float64(len(model.Genders))
	mean := float64(total) / n

	var variance float64
	for _, g := range model.Genders {
		d := float64(counts[g]) - mean
		variance += d * d
	}
	return variance / n
}
