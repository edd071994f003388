package sched

import (
	"context"
	"log"
	"sort"
	"time"

	"fieldsched/internal/model"
)

// DefaultETABuffer pads the customer-facing arrival window on both sides.
const DefaultETABuffer = time.Hour

// CompileTimestamps propagates unit-level schedule times down to per-job
// timestamps for write-back. Days with complete solver start times use them
// directly; otherwise the day falls back to a sequential walk from the
// technician's start location, pinned times acting as a floor. A day that
// overflows its working window past the first overrunning unit gets its
// remaining jobs cleared rather than stamped with impossible times.
func (p *Planner) CompileTimestamps(ctx context.Context, tech model.Technician, schedule model.Schedule, startTimes map[int]map[string]time.Time, buffer time.Duration) ([]model.JobETA, error) {
	if buffer <= 0 {
		buffer = DefaultETABuffer
	}
	days := make([]int, 0, len(schedule))
	for day := range schedule {
		days = append(days, day)
	}
	sort.Ints(days)

	var out []model.JobETA
	for _, day := range days {
		units := schedule[day]
		if len(units) == 0 {
			continue
		}
		if times, ok := completeTimes(startTimes[day], units); ok {
			for _, u := range units {
				out = append(out, stampUnit(u, times[u.ID], buffer)...)
			}
			continue
		}
		etas, err := p.compileSequential(ctx, tech, day, units, buffer)
		if err != nil {
			return nil, err
		}
		out = append(out, etas...)
	}
	return out, nil
}

// completeTimes reports whether the solver produced a start time for every
// unit of the day. Partial coverage is treated as no coverage; mixing the two
// strategies inside one day would misorder the walk.
func completeTimes(times map[string]time.Time, units []model.Unit) (map[string]time.Time, bool) {
	if times == nil {
		return nil, false
	}
	for _, u := range units {
		if _, ok := times[u.ID]; !ok {
			return nil, false
		}
	}
	return times, true
}

// compileSequential derives unit start times by walking the day in committed
// order, travelling between stops and honoring pinned times as a lower bound.
func (p *Planner) compileSequential(ctx context.Context, tech model.Technician, day int, units []model.Unit, buffer time.Duration) ([]model.JobETA, error) {
	avail, err := p.Hours(ctx, tech.ID, day)
	if err != nil {
		return nil, err
	}
	if avail == nil || avail.Duration <= 0 {
		log.Printf("sched: day %d of technician %d has committed units but no working hours, clearing their timestamps", day, tech.ID)
		return clearUnits(units), nil
	}

	var out []model.JobETA
	cursor := avail.Start
	loc := tech.StartLocation(day)
	for i, u := range units {
		arrival := cursor.Add(p.Travel(loc, u.Location))
		start := arrival
		if u.FixedScheduleTime != nil && u.FixedScheduleTime.After(start) {
			start = *u.FixedScheduleTime
		}
		if start.Add(u.Duration).After(avail.End) {
			log.Printf("sched: unit %s overflows day %d for technician %d, clearing timestamps from it onward", u.ID, day, tech.ID)
			out = append(out, clearUnits(units[i:])...)
			return out, nil
		}
		out = append(out, stampUnit(u, start, buffer)...)
		cursor = start.Add(u.Duration)
		loc = u.Location
	}
	return out, nil
}

// stampUnit stacks the unit's jobs back to back from the unit start and
// derives the customer-facing window by padding each job's interval.
func stampUnit(u model.Unit, start time.Time, buffer time.Duration) []model.JobETA {
	out := make([]model.JobETA, 0, len(u.Jobs))
	cursor := start
	for _, j := range u.Jobs {
		js, je := cursor, cursor.Add(j.Duration)
		cs, ce := js.Add(-buffer), je.Add(buffer)
		out = append(out, model.JobETA{
			JobID:            j.ID,
			EstimatedStart:   &js,
			EstimatedEnd:     &je,
			CustomerETAStart: &cs,
			CustomerETAEnd:   &ce,
		})
		cursor = je
	}
	return out
}

// clearUnits emits nil timestamps for every job of the given units so stale
// values do not survive a failed propagation.
func clearUnits(units []model.Unit) []model.JobETA {
	var out []model.JobETA
	for _, u := range units {
		for _, j := range u.Jobs {
			out = append(out, model.JobETA{JobID: j.ID})
		}
	}
	return out
}
