package sched

import (
	"context"
	"sort"
	"time"

	"fieldsched/internal/model"
	"fieldsched/internal/timeutil"
)

// CalculateETA simulates where a candidate unit would land on a technician's
// effective schedule: the committed multi-day schedule plus any reservations
// made earlier in the same assignment batch but not yet persisted. It returns
// the earliest feasible start within the horizon, or ok=false when no day can
// take the unit.
func (p *Planner) CalculateETA(ctx context.Context, tech model.Technician, unit model.Unit, reserved []model.Unit) (time.Time, bool, error) {
	for day := 1; day <= p.horizon(); day++ {
		select {
		case <-ctx.Done():
			return time.Time{}, false, ctx.Err()
		default:
		}
		avail, err := p.Hours(ctx, tech.ID, day)
		if err != nil {
			return time.Time{}, false, err
		}
		if avail == nil || avail.Duration <= 0 {
			continue
		}
		busy := effectiveDay(tech.Schedule[day], reserved, avail.Start)
		windows := carveAround(busy, avail.Start, avail.End, tech.StartLocation(day))

		if unit.FixedScheduleTime != nil {
			if !timeutil.SameDay(*unit.FixedScheduleTime, avail.Start) {
				continue
			}
			if eta, ok := fitFixed(unit, windows); ok {
				return eta, true, nil
			}
			// the pinned day cannot take it; no other day is allowed
			return time.Time{}, false, nil
		}

		for _, w := range windows {
			arrival := w.Start.Add(p.Travel(w.Before, unit.Location))
			if !arrival.Add(unit.Duration).After(w.End) {
				return arrival, true, nil
			}
		}
	}
	return time.Time{}, false, nil
}

// fitFixed checks whether the unit's exact pinned interval fits inside one of
// the day's free windows.
func fitFixed(unit model.Unit, windows []model.Window) (time.Time, bool) {
	start := *unit.FixedScheduleTime
	end := start.Add(unit.Duration)
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return start, true
		}
	}
	return time.Time{}, false
}

// effectiveDay merges the day's committed units with the batch reservations
// that fall on the same day. Only entries with estimated times participate;
// anything else has no footprint to simulate around.
func effectiveDay(committed, reserved []model.Unit, dayStart time.Time) []model.Unit {
	out := append([]model.Unit(nil), committed...)
	for _, r := range reserved {
		if r.EstimatedStart != nil && timeutil.SameDay(*r.EstimatedStart, dayStart) {
			out = append(out, r)
		}
	}
	return out
}

// carveAround builds the free windows of a day already occupied by units with
// estimated start/end times. The cursor walk mirrors CalcWindows but keys on
// estimated times instead of fixed times, and tolerates overlapping input by
// clamping the cursor forward.
func carveAround(busy []model.Unit, dayStart, dayEnd time.Time, startLoc model.Location) []model.Window {
	occupied := make([]model.Unit, 0, len(busy))
	for _, u := range busy {
		if u.EstimatedStart != nil && u.EstimatedEnd != nil {
			occupied = append(occupied, u)
		}
	}
	sort.SliceStable(occupied, func(a, b int) bool {
		return occupied[a].EstimatedStart.Before(*occupied[b].EstimatedStart)
	})

	var windows []model.Window
	cursor := dayStart
	lastLoc := startLoc
	for _, u := range occupied {
		if u.EstimatedStart.After(cursor) {
			windows = append(windows, model.Window{Start: cursor, End: *u.EstimatedStart, Before: lastLoc})
		}
		if u.EstimatedEnd.After(cursor) {
			cursor = *u.EstimatedEnd
		}
		lastLoc = u.Location
	}
	if cursor.Before(dayEnd) {
		windows = append(windows, model.Window{Start: cursor, End: dayEnd, Before: lastLoc})
	}
	return windows
}
