package sched

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"fieldsched/internal/model"
	"fieldsched/internal/opt"
	"fieldsched/internal/timeutil"
	"fieldsched/internal/travel"
)

// DefaultHorizonDays bounds the multi-day look-ahead.
const DefaultHorizonDays = 14

// HoursFunc is the working-hours collaborator: the technician's window for a
// relative day number, nil for non-working days.
type HoursFunc func(ctx context.Context, technicianID, day int) (*model.Availability, error)

// Planner is the multi-day capacity scheduler. It carves each day into free
// windows around fixed commitments, greedily bin-packs dynamic units into
// them, and re-validates each day with one optimizer run, rolling unplaced
// work forward across the horizon.
type Planner struct {
	Hours        HoursFunc
	Travel       model.TravelFunc
	Horizon      int
	SolverBudget time.Duration
	BasePenalty  int64
	Seed         int64
}

func (p *Planner) horizon() int {
	if p.Horizon <= 0 {
		return DefaultHorizonDays
	}
	return p.Horizon
}

func (p *Planner) budget() time.Duration {
	if p.SolverBudget <= 0 {
		return time.Second
	}
	return p.SolverBudget
}

// PlanDays builds a fresh multi-day schedule for one technician from the
// given units. It returns the schedule, the solver start times per day keyed
// by unit id, and whatever could not be placed within the horizon. The
// returned schedule is a new value; the technician is not mutated.
func (p *Planner) PlanDays(ctx context.Context, tech model.Technician, units []model.Unit) (model.Schedule, map[int]map[string]time.Time, []model.Unit, error) {
	var pendingFixed, pendingDynamic []model.Unit
	for _, u := range units {
		if u.FixedScheduleTime != nil {
			pendingFixed = append(pendingFixed, u)
		} else {
			pendingDynamic = append(pendingDynamic, u)
		}
	}
	sortByPriority(pendingDynamic)

	schedule := model.Schedule{}
	startTimes := map[int]map[string]time.Time{}

	for day := 1; day <= p.horizon() && (len(pendingFixed) > 0 || len(pendingDynamic) > 0); day++ {
		avail, err := p.Hours(ctx, tech.ID, day)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("working hours for technician %d day %d: %w", tech.ID, day, err)
		}
		if avail == nil || avail.Duration <= 0 {
			continue
		}
		startLoc := tech.StartLocation(day)

		fixedToday := unitsOnDay(pendingFixed, avail.Start)
		windows, placedFixed := placeFixed(fixedToday, avail.Start, avail.End, startLoc)
		placedDynamic, _ := fillWindows(pendingDynamic, windows)

		if len(placedFixed) == 0 && len(placedDynamic) == 0 {
			continue
		}

		dayUnits := append(append([]model.Unit(nil), placedFixed...), placedDynamic...)
		sol, err := p.solveDay(ctx, tech, *avail, startLoc, dayUnits)
		elapsedOK := err == nil && sol.Status != opt.StatusError &&
			routeElapsed(sol, tech.ID) <= int64(avail.Duration/time.Second)

		if elapsedOK {
			committed, times := commitSolved(sol, tech.ID, dayUnits)
			schedule[day] = committed
			startTimes[day] = times
			pendingDynamic = removeUnits(pendingDynamic, committed)
			pendingFixed = removeUnits(pendingFixed, committed)
		} else {
			if err != nil {
				log.Printf("sched: optimizer failed for technician %d day %d: %v, committing fixed units only", tech.ID, day, err)
			} else {
				log.Printf("sched: day %d route for technician %d exceeds available duration, committing fixed units only", day, tech.ID)
			}
			committed, times := commitFixedOnly(placedFixed)
			schedule[day] = committed
			startTimes[day] = times
			pendingFixed = removeUnits(pendingFixed, committed)
			sortByPriority(pendingDynamic)
		}
	}

	unscheduled := append(append([]model.Unit(nil), pendingDynamic...), pendingFixed...)
	if len(unscheduled) > 0 {
		ids := make([]string, len(unscheduled))
		for i, u := range unscheduled {
			ids[i] = u.ID
		}
		log.Printf("sched: technician %d finished planning with unscheduled units %v", tech.ID, ids)
	}
	return schedule, startTimes, unscheduled, nil
}

// solveDay runs one optimizer invocation for a single technician-day with the
// day's fixed times as exact constraints. The route is open-ended: the day is
// done at the last stop, matching how capacity is measured.
func (p *Planner) solveDay(ctx context.Context, tech model.Technician, avail model.Availability, startLoc model.Location, dayUnits []model.Unit) (opt.Solution, error) {
	matrix := travel.Matrix{}
	locs := append([]model.Location{startLoc}, unitLocations(dayUnits)...)
	for _, a := range locs {
		for _, b := range locs {
			if matrix.Has(a.Index, b.Index) {
				continue
			}
			if a.Index == b.Index {
				matrix.Set(a.Index, b.Index, 0)
				continue
			}
			matrix.Set(a.Index, b.Index, int64(p.Travel(a, b)/time.Second))
		}
	}

	nodes := make([]opt.Node, 0, len(dayUnits))
	for _, u := range dayUnits {
		n := opt.Node{
			ID:          u.ID,
			Location:    u.Location.Index,
			DurationSec: int64(u.Duration / time.Second),
			Priority:    u.Priority,
			Eligible:    []int{tech.ID},
		}
		if u.FixedScheduleTime != nil {
			fs := timeutil.ToEpoch(*u.FixedScheduleTime)
			n.FixedStart = &fs
		}
		nodes = append(nodes, n)
	}

	problem := opt.Problem{
		Vehicles: []opt.Vehicle{{
			ID:            tech.ID,
			StartLocation: startLoc.Index,
			EndLocation:   opt.OpenEnd,
			EarliestStart: timeutil.ToEpoch(avail.Start),
			LatestEnd:     timeutil.ToEpoch(avail.End),
		}},
		Nodes:       nodes,
		Travel:      matrix,
		BasePenalty: p.BasePenalty,
	}
	sol, _, err := opt.Solve(ctx, problem, p.Seed, p.budget())
	return sol, err
}

// commitSolved turns the solver route into the day's committed unit sequence
// with estimated start/end stamped on each unit.
func commitSolved(sol opt.Solution, technicianID int, dayUnits []model.Unit) ([]model.Unit, map[string]time.Time) {
	byID := map[string]model.Unit{}
	for _, u := range dayUnits {
		byID[u.ID] = u
	}
	var committed []model.Unit
	times := map[string]time.Time{}
	for _, r := range sol.Routes {
		if r.VehicleID != technicianID {
			continue
		}
		for _, s := range r.Stops {
			u, ok := byID[s.NodeID]
			if !ok {
				continue
			}
			start := timeutil.FromEpoch(s.Start)
			end := timeutil.FromEpoch(s.End)
			u.EstimatedStart = &start
			u.EstimatedEnd = &end
			committed = append(committed, u)
			times[u.ID] = start
		}
	}
	return committed, times
}

// commitFixedOnly commits only the day's valid fixed units at their pinned
// times, used when the optimizer fails or its route overruns the day.
func commitFixedOnly(placedFixed []model.Unit) ([]model.Unit, map[string]time.Time) {
	var committed []model.Unit
	times := map[string]time.Time{}
	for _, u := range placedFixed {
		start := *u.FixedScheduleTime
		end := start.Add(u.Duration)
		u.EstimatedStart = &start
		u.EstimatedEnd = &end
		committed = append(committed, u)
		times[u.ID] = start
	}
	return committed, times
}

func routeElapsed(sol opt.Solution, technicianID int) int64 {
	for _, r := range sol.Routes {
		if r.VehicleID == technicianID {
			return r.ElapsedSec
		}
	}
	return 0
}

func unitsOnDay(units []model.Unit, dayStart time.Time) []model.Unit {
	var out []model.Unit
	for _, u := range units {
		if u.FixedScheduleTime != nil && timeutil.SameDay(*u.FixedScheduleTime, dayStart) {
			out = append(out, u)
		}
	}
	return out
}

func unitLocations(units []model.Unit) []model.Location {
	out := make([]model.Location, len(units))
	for i, u := range units {
		out[i] = u.Location
	}
	return out
}

func removeUnits(pool, gone []model.Unit) []model.Unit {
	rm := map[string]bool{}
	for _, u := range gone {
		rm[u.ID] = true
	}
	keep := pool[:0]
	for _, u := range pool {
		if !rm[u.ID] {
			keep = append(keep, u)
		}
	}
	return keep
}

func sortByPriority(units []model.Unit) {
	sort.SliceStable(units, func(a, b int) bool { return units[a].Priority < units[b].Priority })
}
