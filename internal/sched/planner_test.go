package sched

import (
	"context"
	"testing"
	"time"

	"fieldsched/internal/model"
)

// Monday, so the relative-day helpers land on working days.
var base = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(day, h, m int) time.Time {
	return base.AddDate(0, 0, day-1).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// testHours grants every day an 08:00-18:00 window inside the horizon.
func testHours(_ context.Context, _, day int) (*model.Availability, error) {
	start := at(day, 8, 0)
	end := at(day, 18, 0)
	return &model.Availability{Day: day, Start: start, End: end, Duration: end.Sub(start)}, nil
}

// testTravel charges ten minutes between distinct location indices.
func testTravel(from, to model.Location) time.Duration {
	if from.Index == to.Index {
		return 0
	}
	return 10 * time.Minute
}

func loc(idx int) model.Location {
	return model.Location{Index: idx, ID: "loc", Lat: float64(idx), Lng: float64(idx)}
}

func dynUnit(id string, locIdx int, dur time.Duration, prio int) model.Unit {
	return model.Unit{ID: id, OrderID: locIdx, Location: loc(locIdx), Duration: dur, Priority: prio,
		Jobs: []model.Job{{ID: locIdx, OrderID: locIdx, Location: loc(locIdx), Duration: dur, Priority: prio}}}
}

func fixedUnit(id string, locIdx int, dur time.Duration, fixed time.Time) model.Unit {
	u := dynUnit(id, locIdx, dur, 1)
	u.FixedScheduleTime = &fixed
	u.Jobs[0].FixedScheduleTime = &fixed
	return u
}

func testPlanner() *Planner {
	return &Planner{Hours: testHours, Travel: testTravel, SolverBudget: 50 * time.Millisecond, Seed: 42}
}

func TestPlanDaysFitsOneDay(t *testing.T) {
	p := testPlanner()
	tech := model.Technician{ID: 1, Home: loc(0)}
	units := []model.Unit{
		dynUnit("u1", 1, 3*time.Hour, 1),
		dynUnit("u2", 2, 3*time.Hour, 2),
		dynUnit("u3", 3, 3*time.Hour, 3),
	}
	schedule, startTimes, unscheduled, err := p.PlanDays(context.Background(), tech, units)
	if err != nil {
		t.Fatalf("PlanDays: %v", err)
	}
	if len(unscheduled) != 0 {
		t.Fatalf("unscheduled: got %v, want none", unscheduled)
	}
	if len(schedule[1]) != 3 {
		t.Fatalf("day 1: got %d units, want 3", len(schedule[1]))
	}
	for _, u := range schedule[1] {
		if u.EstimatedStart == nil || u.EstimatedEnd == nil {
			t.Fatalf("unit %s missing estimated times", u.ID)
		}
		if _, ok := startTimes[1][u.ID]; !ok {
			t.Fatalf("unit %s missing solver start time", u.ID)
		}
		if u.EstimatedStart.Before(at(1, 8, 0)) || u.EstimatedEnd.After(at(1, 18, 0)) {
			t.Fatalf("unit %s outside working hours: %v-%v", u.ID, u.EstimatedStart, u.EstimatedEnd)
		}
	}
}

func TestPlanDaysRollsOverflowToNextDay(t *testing.T) {
	p := testPlanner()
	tech := model.Technician{ID: 1, Home: loc(0)}
	units := []model.Unit{
		dynUnit("u1", 1, 3*time.Hour, 1),
		dynUnit("u2", 2, 3*time.Hour, 1),
		dynUnit("u3", 3, 3*time.Hour, 1),
		dynUnit("u4", 4, 3*time.Hour, 2),
	}
	schedule, _, unscheduled, err := p.PlanDays(context.Background(), tech, units)
	if err != nil {
		t.Fatalf("PlanDays: %v", err)
	}
	if len(unscheduled) != 0 {
		t.Fatalf("unscheduled: got %v, want none", unscheduled)
	}
	if len(schedule[1]) != 3 {
		t.Fatalf("day 1: got %d units, want 3", len(schedule[1]))
	}
	if len(schedule[2]) != 1 || schedule[2][0].ID != "u4" {
		t.Fatalf("day 2: got %+v, want [u4]", schedule[2])
	}
}

func TestPlanDaysPlacesFixedOnItsDay(t *testing.T) {
	p := testPlanner()
	tech := model.Technician{ID: 1, Home: loc(0)}
	fixed := at(3, 10, 0)
	units := []model.Unit{
		fixedUnit("fx", 5, 2*time.Hour, fixed),
		dynUnit("dyn", 1, time.Hour, 2),
	}
	schedule, _, unscheduled, err := p.PlanDays(context.Background(), tech, units)
	if err != nil {
		t.Fatalf("PlanDays: %v", err)
	}
	if len(unscheduled) != 0 {
		t.Fatalf("unscheduled: got %v, want none", unscheduled)
	}
	if len(schedule[1]) != 1 || schedule[1][0].ID != "dyn" {
		t.Fatalf("day 1: got %+v, want [dyn]", schedule[1])
	}
	if len(schedule[3]) != 1 || schedule[3][0].ID != "fx" {
		t.Fatalf("day 3: got %+v, want [fx]", schedule[3])
	}
	if got := schedule[3][0].EstimatedStart; got == nil || !got.Equal(fixed) {
		t.Fatalf("fixed unit start: got %v, want %v", got, fixed)
	}
}

func TestPlanDaysReportsUnplaceableWork(t *testing.T) {
	p := testPlanner()
	p.Horizon = 2
	tech := model.Technician{ID: 1, Home: loc(0)}
	units := []model.Unit{
		// longer than any single day, can never be placed
		dynUnit("whale", 1, 11*time.Hour, 1),
	}
	schedule, _, unscheduled, err := p.PlanDays(context.Background(), tech, units)
	if err != nil {
		t.Fatalf("PlanDays: %v", err)
	}
	if len(schedule) != 0 {
		t.Fatalf("schedule: got %v, want empty", schedule)
	}
	if len(unscheduled) != 1 || unscheduled[0].ID != "whale" {
		t.Fatalf("unscheduled: got %v, want [whale]", unscheduled)
	}
}

func TestPlanDaysUsesCurrentLocationOnDayOne(t *testing.T) {
	p := testPlanner()
	cur := loc(1)
	tech := model.Technician{ID: 1, Home: loc(0), Current: &cur}
	units := []model.Unit{dynUnit("u1", 1, time.Hour, 1)}
	schedule, _, _, err := p.PlanDays(context.Background(), tech, units)
	if err != nil {
		t.Fatalf("PlanDays: %v", err)
	}
	if len(schedule[1]) != 1 {
		t.Fatalf("day 1: got %+v", schedule[1])
	}
	// starting at the job's own location means no travel leg: work starts at
	// the window open
	if got := schedule[1][0].EstimatedStart; !got.Equal(at(1, 8, 0)) {
		t.Fatalf("start: got %v, want %v", got, at(1, 8, 0))
	}
}
