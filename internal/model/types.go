// Package model holds the scheduling domain types shared across the engine.
package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Category tags an equipment/service category. One tagged enum replaces the
// per-category requirement tables of the upstream schema.
type Category string

const (
	CategoryADAS   Category = "adas"
	CategoryAirbag Category = "airbag"
	CategoryImmo   Category = "immo"
	CategoryProg   Category = "prog"
	CategoryDiag   Category = "diag"
)

// JobStatus is the lifecycle state of a job in the upstream system.
type JobStatus string

const (
	StatusPendingReview  JobStatus = "pending_review"
	StatusAssigned       JobStatus = "assigned"
	StatusScheduled      JobStatus = "scheduled"
	StatusPendingRevisit JobStatus = "pending_revisit"
	StatusCompleted      JobStatus = "completed"
	StatusCancelled      JobStatus = "cancelled"
)

// Location is a geocoded address. Immutable once constructed; jobs from the
// same order and technician depots share Location values.
type Location struct {
	Index int     `json:"index"`
	ID    string  `json:"id"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// Equipment is one tool carried in a technician's van.
type Equipment struct {
	ID       int      `json:"id"`
	Category Category `json:"category"`
	Model    string   `json:"model"`
}

// Van is a service van with its equipped tool set.
type Van struct {
	ID        int         `json:"id"`
	Equipment []Equipment `json:"equipment"`
}

// Technician is a mobile technician. Schedule is replaced wholesale by each
// planning pass, never patched in place.
type Technician struct {
	ID       int       `json:"id"`
	Home     Location  `json:"home"`
	Current  *Location `json:"current,omitempty"`
	Van      *Van      `json:"van,omitempty"`
	Schedule Schedule  `json:"schedule,omitempty"`
}

// StartLocation returns where the technician begins relative day number day:
// the live current location on day 1, home thereafter.
func (t Technician) StartLocation(day int) Location {
	if day == 1 && t.Current != nil {
		return *t.Current
	}
	return t.Home
}

// HasEquipment reports whether the technician's van carries the given
// equipment model.
func (t Technician) HasEquipment(model string) bool {
	if t.Van == nil {
		return false
	}
	for _, eq := range t.Van.Equipment {
		if eq.Model == model {
			return true
		}
	}
	return false
}

// HasAllEquipment reports whether the van covers every equipment requirement
// across the given jobs. A technician without a van qualifies only when no job
// requires anything.
func (t Technician) HasAllEquipment(jobs []Job) bool {
	for _, j := range jobs {
		for _, req := range j.EquipmentRequirements {
			if !t.HasEquipment(req) {
				return false
			}
		}
	}
	return true
}

// Job is a single schedulable piece of work, usually part of an Order.
type Job struct {
	ID                    int           `json:"id"`
	OrderID               int           `json:"orderId"`
	ServiceID             int           `json:"serviceId"`
	ServiceCategory       Category      `json:"serviceCategory,omitempty"`
	VehicleModelID        int           `json:"vehicleModelId,omitempty"`
	Location              Location      `json:"location"`
	Duration              time.Duration `json:"duration"`
	Priority              int           `json:"priority"` // lower number = more important
	Status                JobStatus     `json:"status"`
	EquipmentRequirements []string      `json:"equipmentRequirements,omitempty"`
	AssignedTechnician    *int          `json:"assignedTechnician,omitempty"`
	FixedAssignment       bool          `json:"fixedAssignment,omitempty"`
	FixedScheduleTime     *time.Time    `json:"fixedScheduleTime,omitempty"`

	EstimatedStart   *time.Time `json:"estimatedStart,omitempty"`
	EstimatedEnd     *time.Time `json:"estimatedEnd,omitempty"`
	CustomerETAStart *time.Time `json:"customerEtaStart,omitempty"`
	CustomerETAEnd   *time.Time `json:"customerEtaEnd,omitempty"`
}

// Order groups jobs performed together at one location by one technician.
type Order struct {
	ID       int      `json:"id"`
	Location Location `json:"location"`
	Jobs     []Job    `json:"jobs"`
}

// Unit is the atomic planning item: one order's jobs bundled together. Units
// are rebuilt from current job state on every planning pass; the id only
// correlates solver output within a pass.
type Unit struct {
	ID                 string        `json:"id"`
	OrderID            int           `json:"orderId"`
	Jobs               []Job         `json:"jobs"`
	Location           Location      `json:"location"`
	Duration           time.Duration `json:"duration"`
	Priority           int           `json:"priority"`
	AssignedTechnician *int          `json:"assignedTechnician,omitempty"`
	FixedScheduleTime  *time.Time    `json:"fixedScheduleTime,omitempty"`

	EstimatedStart *time.Time `json:"estimatedStart,omitempty"`
	EstimatedEnd   *time.Time `json:"estimatedEnd,omitempty"`
}

// NewUnitID mints a unit identifier unique within a planning pass.
func NewUnitID() string { return fmt.Sprintf("unit_%s", uuid.New().String()[:8]) }

// BuildUnit bundles one order's jobs into a Unit. Priority is the most
// important (lowest) job priority; duration is the sum of job durations; the
// fixed time is taken from the first job that carries one.
func BuildUnit(orderID int, jobs []Job) Unit {
	u := Unit{ID: NewUnitID(), OrderID: orderID, Jobs: jobs}
	if len(jobs) == 0 {
		return u
	}
	u.Location = jobs[0].Location
	u.Priority = jobs[0].Priority
	for _, j := range jobs {
		u.Duration += j.Duration
		if j.Priority < u.Priority {
			u.Priority = j.Priority
		}
		if u.FixedScheduleTime == nil && j.FixedScheduleTime != nil {
			ft := *j.FixedScheduleTime
			u.FixedScheduleTime = &ft
		}
	}
	tech, consistent := jobs[0].AssignedTechnician, true
	for _, j := range jobs[1:] {
		if (j.AssignedTechnician == nil) != (tech == nil) ||
			(tech != nil && j.AssignedTechnician != nil && *j.AssignedTechnician != *tech) {
			consistent = false
			break
		}
	}
	if consistent && tech != nil {
		id := *tech
		u.AssignedTechnician = &id
	}
	return u
}

// GroupJobsByOrder buckets jobs by their order id.
func GroupJobsByOrder(jobs []Job) map[int][]Job {
	out := map[int][]Job{}
	for _, j := range jobs {
		out[j.OrderID] = append(out[j.OrderID], j)
	}
	return out
}

// BuildUnits converts grouped jobs into units, ordered by ascending order id
// for determinism.
func BuildUnits(byOrder map[int][]Job) []Unit {
	ids := make([]int, 0, len(byOrder))
	for id := range byOrder {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	units := make([]Unit, 0, len(ids))
	for _, id := range ids {
		if len(byOrder[id]) == 0 {
			continue
		}
		units = append(units, BuildUnit(id, byOrder[id]))
	}
	return units
}

// Window is a free interval on a technician's day. Before is the location of
// whatever event precedes the window (the day's start location for the first
// one). Always End > Start.
type Window struct {
	Start  time.Time
	End    time.Time
	Before Location
}

// Availability is a technician's working window for one relative day.
type Availability struct {
	Day      int
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Schedule maps relative day number (1 = first planning day) to the ordered
// units committed to that day.
type Schedule map[int][]Unit

// JobETA is one job's propagated timestamps for bulk write-back.
type JobETA struct {
	JobID            int        `json:"jobId"`
	EstimatedStart   *time.Time `json:"estimatedStart"`
	EstimatedEnd     *time.Time `json:"estimatedEnd"`
	CustomerETAStart *time.Time `json:"customerEtaStart"`
	CustomerETAEnd   *time.Time `json:"customerEtaEnd"`
}

// TravelFunc returns the travel time between two locations.
type TravelFunc func(from, to Location) time.Duration
