package api

import (
	"fmt"

	"fieldsched/internal/model"
)

func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if len(req.Technicians) == 0 {
		return fmt.Errorf("at least one technician is required")
	}
	seenLoc := map[int]bool{}
	for _, l := range req.Locations {
		if seenLoc[l.Index] {
			return fmt.Errorf("duplicate location index %d", l.Index)
		}
		seenLoc[l.Index] = true
	}
	seenItem := map[string]bool{}
	for _, it := range req.Items {
		if it.ID == "" {
			return fmt.Errorf("item with empty id")
		}
		if seenItem[it.ID] {
			return fmt.Errorf("duplicate item id %s", it.ID)
		}
		seenItem[it.ID] = true
		if it.DurationSeconds < 0 {
			return fmt.Errorf("item %s has negative duration", it.ID)
		}
	}
	for _, c := range req.FixedConstraints {
		if !seenItem[c.ItemID] {
			return fmt.Errorf("fixed constraint references unknown item %s", c.ItemID)
		}
	}
	for from, row := range req.TravelTimeMatrix {
		for to, v := range row {
			if v < 0 {
				return fmt.Errorf("negative travel time %d -> %d", from, to)
			}
		}
	}
	return nil
}
