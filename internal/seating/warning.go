package seating

import (
	"fmt"

	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
)

// Capacity warning levels reported on model.CapacityWarning.
const (
	// LevelWarning is reported from 80% occupancy.
	LevelWarning = "warning"
	// LevelFull is reported once every seat is taken.
	LevelFull = "full"

	warningPercent = 80.0
	fullPercent    = 100.0
)

// CapacityWarning reports how full t is after a write. It returns nil below
// 80% occupancy.
func CapacityWarning(t *model.Table) *model.CapacityWarning {
	if t == nil || t.MaxCapacity <= 0 {
		return nil
	}
	percent := float64(t.SeatCount) / float64(t.MaxCapacity) * 100

	switch {
	case percent >= fullPercent:
		return &model.CapacityWarning{
			Level:   LevelFull,
			Message: fmt.Sprintf("Table %d is now FULL (%d/%d seats)", t.TableNumber, t.SeatCount, t.MaxCapacity),
			Percent: percent,
		}
	case percent >= warningPercent:
		return &model.CapacityWarning{
			Level:   LevelWarning,
			Message: fmt.Sprintf("Table %d is %.0f%% full (%d/%d seats)", t.TableNumber, percent, t.SeatCount, t.MaxCapacity),
			Percent: percent,
		}
	}
	return nil
}
