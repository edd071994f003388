package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldsched/internal/model"
	"fieldsched/internal/store"
)

func vanWith(models ...string) *model.Van {
	v := &model.Van{ID: 1}
	for i, m := range models {
		v.Equipment = append(v.Equipment, model.Equipment{ID: i + 1, Category: model.CategoryADAS, Model: m})
	}
	return v
}

func seedJob(m *store.Memory, id, orderID, locIdx int, dur time.Duration, reqs ...string) model.Job {
	j := model.Job{
		ID: id, OrderID: orderID, ServiceID: 1,
		Location: loc(locIdx), Duration: dur, Priority: 1,
		Status: model.StatusPendingReview, EquipmentRequirements: reqs,
	}
	m.PutJob(j)
	return j
}

func testEngine(m *store.Memory) *Engine {
	return &Engine{Store: m, Planner: testPlanner(), Buffer: time.Hour}
}

func TestAssignJobsPrefersLowestIDOnTie(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	techs := []model.Technician{
		{ID: 2, Home: loc(0)},
		{ID: 1, Home: loc(0)},
	}
	job := seedJob(m, 1, 100, 1, time.Hour)

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{job})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	if len(res.Assignments) != 1 {
		t.Fatalf("assignments: got %+v", res.Assignments)
	}
	if res.Assignments[0].TechnicianID != 1 {
		t.Fatalf("tie-break: got technician %d, want 1", res.Assignments[0].TechnicianID)
	}
}

func TestAssignJobsRequiresEquipment(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	techs := []model.Technician{
		{ID: 1, Home: loc(0)}, // no van at all
		{ID: 2, Home: loc(0), Van: vanWith("autel-adas")},
	}
	job := seedJob(m, 1, 100, 1, time.Hour, "autel-adas")

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{job})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	if len(res.Assignments) != 1 || res.Assignments[0].TechnicianID != 2 {
		t.Fatalf("assignments: got %+v, want order on technician 2", res.Assignments)
	}
}

func TestAssignJobsReservationsPreventDoubleBooking(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	techs := []model.Technician{
		{ID: 1, Home: loc(0)},
		{ID: 2, Home: loc(0)},
	}
	jobA := seedJob(m, 1, 100, 1, 6*time.Hour)
	jobB := seedJob(m, 2, 200, 1, 6*time.Hour)

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{jobA, jobB})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	if len(res.Assignments) != 2 {
		t.Fatalf("assignments: got %+v", res.Assignments)
	}
	// first order takes technician 1's morning; the reservation makes
	// technician 2 the earlier option for the second order
	if res.Assignments[0].TechnicianID != 1 || res.Assignments[1].TechnicianID != 2 {
		t.Fatalf("spread: got %d then %d, want 1 then 2",
			res.Assignments[0].TechnicianID, res.Assignments[1].TechnicianID)
	}
}

func TestAssignJobsReportsUnassignableOrder(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	techs := []model.Technician{{ID: 1, Home: loc(0)}}
	job := seedJob(m, 1, 100, 1, time.Hour, "tool-nobody-has")

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{job})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	if len(res.Assignments) != 0 {
		t.Fatalf("assignments: got %+v, want none", res.Assignments)
	}
	if len(res.UnassignedJobs) != 1 || res.UnassignedJobs[0] != 1 {
		t.Fatalf("unassigned jobs: got %v, want [1]", res.UnassignedJobs)
	}
	if len(res.UnassignedOrders) != 1 || res.UnassignedOrders[0] != 100 {
		t.Fatalf("unassigned orders: got %v, want [100]", res.UnassignedOrders)
	}
}

func TestAssignJobsSplitsOrderAcrossTechnicians(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	techs := []model.Technician{
		{ID: 1, Home: loc(0), Van: vanWith("tool-a")},
		{ID: 2, Home: loc(0), Van: vanWith("tool-b")},
	}
	jobA := seedJob(m, 1, 100, 1, time.Hour, "tool-a")
	jobB := seedJob(m, 2, 100, 1, time.Hour, "tool-b")

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{jobA, jobB})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	// nobody carries both tools, so the order splits into per-job assignments
	if len(res.Assignments) != 2 {
		t.Fatalf("assignments: got %+v, want the order split in two", res.Assignments)
	}
	byJob := map[int]int{}
	for _, a := range res.Assignments {
		if a.OrderID != 100 || len(a.JobIDs) != 1 {
			t.Fatalf("split decision should carry one job: %+v", a)
		}
		byJob[a.JobIDs[0]] = a.TechnicianID
	}
	if byJob[1] != 1 || byJob[2] != 2 {
		t.Fatalf("jobs landed on the wrong vans: %v", byJob)
	}
	if len(res.UnassignedJobs) != 0 || len(res.UnassignedOrders) != 0 {
		t.Fatalf("nothing should be left over: %+v", res)
	}
}

func TestAssignJobsSplitReportsLeftoverJob(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	techs := []model.Technician{{ID: 1, Home: loc(0), Van: vanWith("tool-a")}}
	jobA := seedJob(m, 1, 100, 1, time.Hour, "tool-a")
	jobB := seedJob(m, 2, 100, 1, time.Hour, "tool-nobody-has")

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{jobA, jobB})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	if len(res.Assignments) != 1 || res.Assignments[0].JobIDs[0] != 1 {
		t.Fatalf("assignments: got %+v, want job 1 placed individually", res.Assignments)
	}
	if len(res.UnassignedJobs) != 1 || res.UnassignedJobs[0] != 2 {
		t.Fatalf("unassigned jobs: got %v, want [2]", res.UnassignedJobs)
	}
	// one job landed, so the order itself is not reported unassigned
	if len(res.UnassignedOrders) != 0 {
		t.Fatalf("unassigned orders: got %v, want none", res.UnassignedOrders)
	}
}

func TestAssignJobsLeavesFixedAssignmentsAlone(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	tech2 := 2
	techs := []model.Technician{
		{ID: 1, Home: loc(0)},
		{ID: 2, Home: loc(0)},
	}
	j := model.Job{
		ID: 1, OrderID: 100, ServiceID: 1,
		Location: loc(1), Duration: time.Hour, Priority: 1,
		Status: model.StatusPendingReview, FixedAssignment: true, AssignedTechnician: &tech2,
	}
	m.PutJob(j)

	res, err := e.AssignJobs(context.Background(), techs, []model.Job{j})
	if err != nil {
		t.Fatalf("AssignJobs: %v", err)
	}
	if len(res.Assignments) != 0 || len(res.UnassignedJobs) != 0 || len(res.UnassignedOrders) != 0 {
		t.Fatalf("fixed assignment must pass through untouched: %+v", res)
	}
	jobs, err := m.ListSchedulableJobs(context.Background())
	if err != nil {
		t.Fatalf("ListSchedulableJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != model.StatusPendingReview {
		t.Fatalf("job state changed: %+v", jobs)
	}
	if jobs[0].AssignedTechnician == nil || *jobs[0].AssignedTechnician != 2 {
		t.Fatalf("pinned technician changed: %+v", jobs[0].AssignedTechnician)
	}
}

type failingScheduleStore struct {
	*store.Memory
}

func (s *failingScheduleStore) ReplaceSchedule(ctx context.Context, technicianID int, schedule model.Schedule) error {
	return errors.New("storage offline")
}

func TestRebuildScheduleWritesScheduleBeforeETAs(t *testing.T) {
	m := store.NewMemory()
	m.PutTechnician(model.Technician{ID: 1, Home: loc(0)})
	tech1 := 1
	m.PutJob(model.Job{
		ID: 1, OrderID: 100, ServiceID: 1,
		Location: loc(1), Duration: time.Hour, Priority: 1,
		Status: model.StatusAssigned, AssignedTechnician: &tech1,
	})
	e := &Engine{Store: &failingScheduleStore{Memory: m}, Planner: testPlanner(), Buffer: time.Hour}

	if err := e.RebuildSchedule(context.Background(), 1); err == nil {
		t.Fatal("expected the schedule write failure to surface")
	}
	jobs, err := m.ListAssignedJobs(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAssignedJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("jobs: %+v", jobs)
	}
	if jobs[0].EstimatedStart != nil || jobs[0].CustomerETAStart != nil {
		t.Fatalf("timestamps must not land when the schedule write fails: %+v", jobs[0])
	}
}

func TestRunCycleEndToEnd(t *testing.T) {
	m := store.NewMemory()
	e := testEngine(m)
	m.PutTechnician(model.Technician{ID: 1, Home: loc(0), Van: vanWith("autel-adas")})
	m.SetEquipmentRequirement(model.CategoryADAS, 3, 4, []string{"autel-adas"})
	m.PutJob(model.Job{
		ID: 1, OrderID: 100, ServiceID: 4, ServiceCategory: model.CategoryADAS, VehicleModelID: 3,
		Location: loc(1), Duration: 2 * time.Hour, Priority: 1, Status: model.StatusPendingReview,
	})

	res, err := e.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(res.Assignments) != 1 || res.Assignments[0].TechnicianID != 1 {
		t.Fatalf("assignments: got %+v", res.Assignments)
	}

	tech, err := m.GetTechnician(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTechnician: %v", err)
	}
	if len(tech.Schedule) == 0 {
		t.Fatal("schedule was not replaced")
	}
	jobs, err := m.ListAssignedJobs(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAssignedJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("assigned jobs: got %+v", jobs)
	}
	j := jobs[0]
	if j.Status != model.StatusScheduled {
		t.Fatalf("status: got %s, want scheduled", j.Status)
	}
	if j.EstimatedStart == nil || j.CustomerETAStart == nil {
		t.Fatalf("timestamps not propagated: %+v", j)
	}
	if got := j.CustomerETAStart; !got.Equal(j.EstimatedStart.Add(-time.Hour)) {
		t.Fatalf("customer window start: got %v, want one hour before %v", got, j.EstimatedStart)
	}
}
