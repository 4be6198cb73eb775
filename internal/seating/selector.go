package seating

import (
	"errors"
	"math"
	"sort"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// ErrCapacityExceeded is returned when no seat is left anywhere.
var ErrCapacityExceeded = errors.New("all tables are full, maximum capacity reached")

// Weights tune the combined table score
// balance*Balance + seatCount*Occupancy + U[0, Noise).
type Weights struct {
	Balance   float64
	Occupancy float64
	Noise     float64
	// TopFraction is the share of best-scoring tables the final pick is
	// drawn from (at least one table).
	TopFraction float64
}

// DefaultWeights let balance dominate, spread occupancy second and break
// ties randomly.
var DefaultWeights = Weights{Balance: 15, Occupancy: 3, Noise: 2, TopFraction: 0.3}

// Decision is the outcome of a selection. Exactly one of Table and Create
// is set.
type Decision struct {
	// Table is the existing table the attendee is appended to.
	Table *model.Table
	// Create asks for a new table document at (TableNumber, Tent).
	Create      bool
	TableNumber int
	Tent        int
	// Fallback is true when the randomly chosen tent was exhausted and the
	// seat was found in another tent.
	Fallback bool
}

// Selector picks a table for a new attendee.
type Selector struct {
	layout  model.Layout
	weights Weights
}

// NewSelector constructs a Selector for the given venue layout.
func NewSelector(layout model.Layout, weights Weights) *Selector {
	if weights.TopFraction <= 0 || weights.TopFraction > 1 {
		weights.TopFraction = DefaultWeights.TopFraction
	}
	return &Selector{layout: layout, weights: weights}
}

// Layout returns the venue layout the selector works with.
func (s *Selector) Layout() model.Layout {
	return s.layout
}

// Select chooses where an attendee of the given gender sits, based on the
// snapshot of all tables. The snapshot must come from the same transaction
// that will apply the decision.
//
// Tiers, in order:
//  1. a random tent; an open table there, picked by score
//  2. a new table in that tent, with a random unused table number
//  3. any open table in any tent, picked by score
//
// If none applies ErrCapacityExceeded is returned.
func (s *Selector) Select(rng Rand, gender model.Gender, tables []model.Table) (Decision, error) {
	tent := rng.IntN(s.layout.Tents) + 1

	var open []*model.Table
	used := make(map[int]bool)
	for i := range tables {
		t := &tables[i]
		if t.Tent != tent {
			continue
		}
		used[t.TableNumber] = true
		if t.HasFreeSeat() {
			open = append(open, t)
		}
	}

	if len(open) > 0 {
		return Decision{Table: s.pick(rng, gender, open)}.withTable(), nil
	}

	if len(used) < s.layout.TablesPerTent {
		var unused []int
		for n := 1; n <= s.layout.TablesPerTent; n++ {
			if !used[n] {
				unused = append(unused, n)
			}
		}
		if len(unused) > 0 {
			return Decision{Create: true, TableNumber: unused[rng.IntN(len(unused))], Tent: tent}, nil
		}
	}

	var anywhere []*model.Table
	for i := range tables {
		if tables[i].HasFreeSeat() {
			anywhere = append(anywhere, &tables[i])
		}
	}
	if len(anywhere) == 0 {
		return Decision{}, ErrCapacityExceeded
	}
	return Decision{Table: s.pick(rng, gender, anywhere), Fallback: true}.withTable(), nil
}

// withTable copies the chosen table's coordinates onto the decision.
func (d Decision) withTable() Decision {
	if d.Table != nil {
		d.TableNumber = d.Table.TableNumber
		d.Tent = d.Table.Tent
	}
	return d
}

type scoredTable struct {
	table *model.Table
	score float64
}

// pick shuffles the candidates, scores them, and draws uniformly from the
// best TopFraction of them.
func (s *Selector) pick(rng Rand, gender model.Gender, candidates []*model.Table) *model.Table {
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	scored := make([]scoredTable, len(candidates))
	for i, t := range candidates {
		scored[i] = scoredTable{table: t, score: s.Score(rng, t, gender)}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score < scored[j].score
	})

	k := int(math.Ceil(float64(len(scored)) * s.weights.TopFraction))
	k = max(1, min(k, len(scored)))
	return scored[rng.IntN(k)].table
}

// Score is the combined score of seating gender at t. Lower wins.
func (s *Selector) Score(rng Rand, t *model.Table, gender model.Gender) float64 {
	balance := BalanceScore(t.ActiveGenders(), gender)
	noise := 0.0
	if s.weights.Noise > 0 {
		noise = rng.Float64() * s.weights.Noise
	}
	return balance*s.weights.Balance + float64(t.SeatCount)*s.weights.Occupancy + noise
}
