package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fieldsched/internal/model"
	"fieldsched/internal/timeutil"
)

// Default working hours applied when no per-day override exists: weekdays
// 09:00 to 18:30 UTC.
const (
	defaultDayStartHour = 9
	defaultDayEndHour   = 18
	defaultDayEndMin    = 30
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	techs map[int]model.Technician
	jobs  map[int]model.Job
	hours map[int]map[int]*model.Availability // techId -> day -> override (nil = day off)
	reqs  map[reqKey][]string

	// Now anchors relative day numbers; tests override it.
	Now func() time.Time
}

type reqKey struct {
	category       model.Category
	vehicleModelID int
	serviceID      int
}

func NewMemory() *Memory {
	return &Memory{
		techs: map[int]model.Technician{},
		jobs:  map[int]model.Job{},
		hours: map[int]map[int]*model.Availability{},
		reqs:  map[reqKey][]string{},
		Now:   time.Now,
	}
}

func (m *Memory) PutTechnician(t model.Technician) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.techs[t.ID] = t
}

func (m *Memory) PutJob(j model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

// SetWorkingHours overrides one technician-day. A nil availability marks the
// day off.
func (m *Memory) SetWorkingHours(technicianID, day int, a *model.Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hours[technicianID] == nil {
		m.hours[technicianID] = map[int]*model.Availability{}
	}
	m.hours[technicianID][day] = a
}

func (m *Memory) SetEquipmentRequirement(category model.Category, vehicleModelID, serviceID int, models []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[reqKey{category, vehicleModelID, serviceID}] = models
}

func (m *Memory) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.techs))
	for id := range m.techs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]model.Technician, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.techs[id])
	}
	return out, nil
}

func (m *Memory) GetTechnician(ctx context.Context, id int) (model.Technician, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.techs[id]
	if !ok {
		return model.Technician{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ReplaceSchedule(ctx context.Context, technicianID int, s model.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.techs[technicianID]
	if !ok {
		return ErrNotFound
	}
	t.Schedule = s
	m.techs[technicianID] = t
	return nil
}

func (m *Memory) WorkingHours(ctx context.Context, technicianID, day int) (*model.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if overrides, ok := m.hours[technicianID]; ok {
		if a, ok := overrides[day]; ok {
			return a, nil
		}
	}
	return defaultHours(m.Now(), day), nil
}

// defaultHours builds the stock weekday window for a relative day, nil on
// weekends.
func defaultHours(now time.Time, day int) *model.Availability {
	date := timeutil.DayDate(now, day)
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil
	}
	start := date.Add(defaultDayStartHour * time.Hour)
	end := date.Add(defaultDayEndHour*time.Hour + defaultDayEndMin*time.Minute)
	return &model.Availability{Day: day, Start: start, End: end, Duration: end.Sub(start)}
}

func (m *Memory) ListSchedulableJobs(ctx context.Context) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		if j.Status == model.StatusPendingReview || j.Status == model.StatusPendingRevisit {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *Memory) ListAssignedJobs(ctx context.Context, technicianID int) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		if j.AssignedTechnician != nil && *j.AssignedTechnician == technicianID &&
			(j.Status == model.StatusAssigned || j.Status == model.StatusScheduled) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (m *Memory) UpdateJobAssignment(ctx context.Context, jobID int, technicianID *int, status model.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.AssignedTechnician = technicianID
	j.Status = status
	m.jobs[jobID] = j
	return nil
}

func (m *Memory) UpdateJobFixedTime(ctx context.Context, jobID int, fixed *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.FixedScheduleTime = fixed
	m.jobs[jobID] = j
	return nil
}

func (m *Memory) UpdateJobETAs(ctx context.Context, etas []model.JobETA) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range etas {
		j, ok := m.jobs[e.JobID]
		if !ok {
			continue
		}
		j.EstimatedStart = e.EstimatedStart
		j.EstimatedEnd = e.EstimatedEnd
		j.CustomerETAStart = e.CustomerETAStart
		j.CustomerETAEnd = e.CustomerETAEnd
		m.jobs[e.JobID] = j
	}
	return nil
}

func (m *Memory) EquipmentRequirement(ctx context.Context, category model.Category, vehicleModelID, serviceID int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reqs[reqKey{category, vehicleModelID, serviceID}], nil
}

var _ Store = (*Memory)(nil)
