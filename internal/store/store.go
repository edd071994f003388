// Package store is the persistence boundary of the scheduling engine. Memory
// backs tests and local runs; Postgres is used when DATABASE_URL is set.
package store

import (
	"context"
	"errors"
	"time"

	"fieldsched/internal/model"
)

// Store is the persistence interface used by the assignment engine and the
// API server.
type Store interface {
	// Technicians
	ListTechnicians(ctx context.Context) ([]model.Technician, error)
	GetTechnician(ctx context.Context, id int) (model.Technician, error)
	ReplaceSchedule(ctx context.Context, technicianID int, s model.Schedule) error

	// Working hours. A nil availability means a non-working day. Day is
	// relative: 1 is the first planning day.
	WorkingHours(ctx context.Context, technicianID, day int) (*model.Availability, error)

	// Jobs
	ListSchedulableJobs(ctx context.Context) ([]model.Job, error)
	ListAssignedJobs(ctx context.Context, technicianID int) ([]model.Job, error)
	UpdateJobAssignment(ctx context.Context, jobID int, technicianID *int, status model.JobStatus) error
	UpdateJobFixedTime(ctx context.Context, jobID int, fixed *time.Time) error
	UpdateJobETAs(ctx context.Context, etas []model.JobETA) error

	// Equipment requirements keyed by service category, vehicle model and
	// service. Missing rows mean no requirement.
	EquipmentRequirement(ctx context.Context, category model.Category, vehicleModelID, serviceID int) ([]string, error)
}

var ErrNotFound = errors.New("not found")
