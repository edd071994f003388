// Package sched implements the multi-day capacity scheduler, the availability
// window calculator, the ETA simulator, and the assignment engine on top of
// the daily route optimizer.
package sched

import (
	"log"
	"sort"
	"time"

	"fieldsched/internal/model"
)

// CalcWindows carves a technician's day into free windows around fixed-time
// units. Fixed units are walked in ascending start order; one that conflicts
// with the running cursor or overruns dayEnd is logged and skipped without
// advancing the cursor. Returned windows are non-overlapping, ordered by
// start, and cover the day minus the validly-placed fixed commitments.
func CalcWindows(fixed []model.Unit, dayStart, dayEnd time.Time, startLoc model.Location) []model.Window {
	windows, _ := placeFixed(fixed, dayStart, dayEnd, startLoc)
	return windows
}

// placeFixed is CalcWindows plus the list of fixed units that were accepted
// into the day. The scheduler needs the accepted set so a conflicting fixed
// unit is not committed.
func placeFixed(fixed []model.Unit, dayStart, dayEnd time.Time, startLoc model.Location) ([]model.Window, []model.Unit) {
	sorted := make([]model.Unit, 0, len(fixed))
	for _, u := range fixed {
		if u.FixedScheduleTime == nil {
			continue
		}
		sorted = append(sorted, u)
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].FixedScheduleTime.Before(*sorted[b].FixedScheduleTime)
	})

	var windows []model.Window
	var placed []model.Unit
	lastEnd := dayStart
	lastLoc := startLoc
	for _, u := range sorted {
		if u.Duration <= 0 {
			log.Printf("sched: skipping fixed unit %s with non-positive duration", u.ID)
			continue
		}
		fixedStart := *u.FixedScheduleTime
		fixedEnd := fixedStart.Add(u.Duration)
		if fixedStart.Before(lastEnd) || fixedEnd.After(dayEnd) {
			log.Printf("sched: fixed unit %s conflicts with day cursor or working hours, ignoring for window calculation", u.ID)
			continue
		}
		if fixedStart.After(lastEnd) {
			windows = append(windows, model.Window{Start: lastEnd, End: fixedStart, Before: lastLoc})
		}
		lastEnd = fixedEnd
		lastLoc = u.Location
		placed = append(placed, u)
	}
	if lastEnd.Before(dayEnd) {
		windows = append(windows, model.Window{Start: lastEnd, End: dayEnd, Before: lastLoc})
	}
	return windows, placed
}

// fillWindows greedily places dynamic units (already sorted most important
// first) into the earliest window with enough remaining length, consuming
// window capacity as it goes. Travel precision is deliberately ignored here;
// the optimizer re-validates the day afterwards.
func fillWindows(dynamic []model.Unit, windows []model.Window) (placed, remaining []model.Unit) {
	free := append([]model.Window(nil), windows...)
	for _, u := range dynamic {
		if u.Duration <= 0 {
			log.Printf("sched: skipping dynamic unit %s with non-positive duration", u.ID)
			remaining = append(remaining, u)
			continue
		}
		fitted := false
		for i := range free {
			if free[i].End.Sub(free[i].Start) >= u.Duration {
				free[i].Start = free[i].Start.Add(u.Duration)
				placed = append(placed, u)
				fitted = true
				break
			}
		}
		if !fitted {
			remaining = append(remaining, u)
		}
	}
	return placed, remaining
}
