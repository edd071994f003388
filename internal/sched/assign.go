package sched

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldsched/internal/model"
	"fieldsched/internal/store"
)

// EventSink receives engine events for fan-out to subscribers. Implementations
// must not block.
type EventSink interface {
	Publish(eventType string, payload any)
}

// Engine drives the assignment cycle: pick a technician per order unit by
// simulated ETA, persist the assignment, then rebuild each touched
// technician's multi-day schedule and propagate timestamps.
type Engine struct {
	Store   store.Store
	Planner *Planner
	Buffer  time.Duration
	Events  EventSink
}

// Assignment records one decided unit.
type Assignment struct {
	OrderID      int       `json:"orderId"`
	TechnicianID int       `json:"technicianId"`
	ETA          time.Time `json:"eta"`
	JobIDs       []int     `json:"jobIds"`
}

// AssignResult is the outcome of one assignment batch. UnassignedOrders lists
// orders where not a single job could be placed.
type AssignResult struct {
	Assignments      []Assignment `json:"assignments"`
	UnassignedJobs   []int        `json:"unassignedJobs"`
	UnassignedOrders []int        `json:"unassignedOrders"`
}

// AssignJobs decides a technician for every dynamic order bundle in the batch.
// Jobs pinned by a fixed assignment never enter the batch. A multi-job order
// is first offered whole to a technician equipped for all of it; when none can
// take the bundle, its jobs fall back to individual assignment gated by each
// job's own requirements. Every decision reserves capacity on the chosen
// technician's effective schedule so later decisions in the same batch cannot
// double-book a slot. Candidate ETAs are simulated concurrently, the
// decisions themselves stay sequential.
func (e *Engine) AssignJobs(ctx context.Context, techs []model.Technician, jobs []model.Job) (AssignResult, error) {
	dynamic := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if !j.FixedAssignment {
			dynamic = append(dynamic, j)
		}
	}
	units := model.BuildUnits(model.GroupJobsByOrder(dynamic))
	reserved := map[int][]model.Unit{}
	var res AssignResult

	for _, unit := range units {
		if len(unit.Jobs) > 1 {
			ok, err := e.assignUnit(ctx, techs, unit, reserved, &res)
			if err != nil {
				return res, err
			}
			if ok {
				continue
			}
			log.Printf("sched: no technician can take order %d whole, trying its jobs individually", unit.OrderID)
		}
		placed := false
		for _, j := range unit.Jobs {
			single := model.BuildUnit(unit.OrderID, []model.Job{j})
			ok, err := e.assignUnit(ctx, techs, single, reserved, &res)
			if err != nil {
				return res, err
			}
			if ok {
				placed = true
				continue
			}
			log.Printf("sched: no technician can take job %d within the horizon", j.ID)
			res.UnassignedJobs = append(res.UnassignedJobs, j.ID)
		}
		if !placed {
			res.UnassignedOrders = append(res.UnassignedOrders, unit.OrderID)
		}
	}
	return res, nil
}

// assignUnit offers one unit to the candidates and commits the best quote.
// Returns false when no candidate fits the unit within the horizon.
func (e *Engine) assignUnit(ctx context.Context, techs []model.Technician, unit model.Unit, reserved map[int][]model.Unit, res *AssignResult) (bool, error) {
	techID, eta, ok, err := e.chooseTechnician(ctx, techs, unit, reserved)
	if err != nil || !ok {
		return false, err
	}
	end := eta.Add(unit.Duration)
	unit.AssignedTechnician = &techID
	unit.EstimatedStart = &eta
	unit.EstimatedEnd = &end
	reserved[techID] = append(reserved[techID], unit)

	a := Assignment{OrderID: unit.OrderID, TechnicianID: techID, ETA: eta}
	for _, j := range unit.Jobs {
		if err := e.Store.UpdateJobAssignment(ctx, j.ID, &techID, model.StatusAssigned); err != nil {
			return false, fmt.Errorf("assign job %d: %w", j.ID, err)
		}
		a.JobIDs = append(a.JobIDs, j.ID)
	}
	res.Assignments = append(res.Assignments, a)
	e.publish("job.assigned", a)
	return true, nil
}

// chooseTechnician simulates the candidate unit on every eligible technician
// and picks the earliest ETA, lowest technician id on ties.
func (e *Engine) chooseTechnician(ctx context.Context, techs []model.Technician, unit model.Unit, reserved map[int][]model.Unit) (int, time.Time, bool, error) {
	type quote struct {
		techID int
		eta    time.Time
	}
	var (
		mu     sync.Mutex
		quotes []quote
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range techs {
		if !candidateFor(t, unit) {
			continue
		}
		t := t
		g.Go(func() error {
			eta, ok, err := e.Planner.CalculateETA(gctx, t, unit, reserved[t.ID])
			if err != nil {
				return fmt.Errorf("eta for technician %d: %w", t.ID, err)
			}
			if ok {
				mu.Lock()
				quotes = append(quotes, quote{techID: t.ID, eta: eta})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, time.Time{}, false, err
	}
	if len(quotes) == 0 {
		return 0, time.Time{}, false, nil
	}
	sort.Slice(quotes, func(a, b int) bool {
		if !quotes[a].eta.Equal(quotes[b].eta) {
			return quotes[a].eta.Before(quotes[b].eta)
		}
		return quotes[a].techID < quotes[b].techID
	})
	return quotes[0].techID, quotes[0].eta, true, nil
}

// candidateFor applies the hard eligibility gates: equipment coverage plus any
// technician already pinned on the unit.
func candidateFor(t model.Technician, unit model.Unit) bool {
	if unit.AssignedTechnician != nil && *unit.AssignedTechnician != t.ID {
		return false
	}
	return t.HasAllEquipment(unit.Jobs)
}

// RebuildSchedule replans one technician from their currently assigned jobs,
// replaces the stored schedule wholesale, and writes propagated job
// timestamps. Units that fall off the horizon are pushed back to
// pending_revisit so the next cycle retries them.
func (e *Engine) RebuildSchedule(ctx context.Context, technicianID int) error {
	tech, err := e.Store.GetTechnician(ctx, technicianID)
	if err != nil {
		return fmt.Errorf("load technician %d: %w", technicianID, err)
	}
	jobs, err := e.Store.ListAssignedJobs(ctx, technicianID)
	if err != nil {
		return fmt.Errorf("load jobs for technician %d: %w", technicianID, err)
	}
	units := model.BuildUnits(model.GroupJobsByOrder(jobs))

	schedule, startTimes, unscheduled, err := e.Planner.PlanDays(ctx, tech, units)
	if err != nil {
		return fmt.Errorf("plan technician %d: %w", technicianID, err)
	}
	etas, err := e.Planner.CompileTimestamps(ctx, tech, schedule, startTimes, e.Buffer)
	if err != nil {
		return fmt.Errorf("compile timestamps for technician %d: %w", technicianID, err)
	}
	// schedule first, then its timestamps: a failure in between leaves stale
	// ETAs against the new schedule rather than fresh ETAs against the old one
	if err := e.Store.ReplaceSchedule(ctx, technicianID, schedule); err != nil {
		return fmt.Errorf("replace schedule for technician %d: %w", technicianID, err)
	}
	if err := e.Store.UpdateJobETAs(ctx, etas); err != nil {
		return fmt.Errorf("write timestamps for technician %d: %w", technicianID, err)
	}

	for _, day := range sortedDays(schedule) {
		for _, u := range schedule[day] {
			for _, j := range u.Jobs {
				if err := e.Store.UpdateJobAssignment(ctx, j.ID, &technicianID, model.StatusScheduled); err != nil {
					return fmt.Errorf("mark job %d scheduled: %w", j.ID, err)
				}
			}
		}
	}
	for _, u := range unscheduled {
		for _, j := range u.Jobs {
			if err := e.Store.UpdateJobAssignment(ctx, j.ID, nil, model.StatusPendingRevisit); err != nil {
				return fmt.Errorf("release job %d: %w", j.ID, err)
			}
		}
	}
	e.publish("schedule.rebuilt", map[string]any{
		"technicianId": technicianID,
		"days":         len(schedule),
		"unscheduled":  len(unscheduled),
	})
	return nil
}

// RunCycle is the full engine pass: enrich pending jobs with their equipment
// requirements, assign them, then rebuild every touched technician's
// schedule. A technician whose rebuild fails is logged and skipped; one bad
// plan must not sink the cycle.
func (e *Engine) RunCycle(ctx context.Context) (AssignResult, error) {
	techs, err := e.Store.ListTechnicians(ctx)
	if err != nil {
		return AssignResult{}, fmt.Errorf("list technicians: %w", err)
	}
	jobs, err := e.Store.ListSchedulableJobs(ctx)
	if err != nil {
		return AssignResult{}, fmt.Errorf("list schedulable jobs: %w", err)
	}
	for i := range jobs {
		if len(jobs[i].EquipmentRequirements) > 0 || jobs[i].ServiceCategory == "" {
			continue
		}
		reqs, err := e.Store.EquipmentRequirement(ctx, jobs[i].ServiceCategory, jobs[i].VehicleModelID, jobs[i].ServiceID)
		if err != nil {
			return AssignResult{}, fmt.Errorf("equipment requirement for job %d: %w", jobs[i].ID, err)
		}
		jobs[i].EquipmentRequirements = reqs
	}

	res, err := e.AssignJobs(ctx, techs, jobs)
	if err != nil {
		return res, err
	}
	touched := map[int]bool{}
	for _, a := range res.Assignments {
		touched[a.TechnicianID] = true
	}
	for _, id := range sortedKeys(touched) {
		if err := e.RebuildSchedule(ctx, id); err != nil {
			log.Printf("sched: rebuild for technician %d failed: %v", id, err)
		}
	}
	return res, nil
}

func (e *Engine) publish(eventType string, payload any) {
	if e.Events != nil {
		e.Events.Publish(eventType, payload)
	}
}

func sortedDays(s model.Schedule) []int {
	out := make([]int, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
