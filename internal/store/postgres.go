package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldsched/internal/model"
	"fieldsched/internal/timeutil"
)

// Postgres backs the store with a SQL database via the pgx driver.
type Postgres struct {
	db *sql.DB

	// Now anchors relative day numbers; tests override it.
	Now func() time.Time
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db, Now: time.Now}, nil
}

func (p *Postgres) ListTechnicians(ctx context.Context) ([]model.Technician, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM technicians ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Technician, 0, len(ids))
	for _, id := range ids {
		t, err := p.GetTechnician(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *Postgres) GetTechnician(ctx context.Context, id int) (model.Technician, error) {
	var t model.Technician
	var homeIdx int
	var homeID string
	var homeLat, homeLng float64
	var curIdx sql.NullInt64
	var curID sql.NullString
	var curLat, curLng sql.NullFloat64
	var vanID sql.NullInt64
	var scheduleRaw []byte
	row := p.db.QueryRowContext(ctx, `
		SELECT t.id,
		       h.id, h.external_id, h.lat, h.lng,
		       c.id, c.external_id, c.lat, c.lng,
		       t.van_id, t.schedule
		FROM technicians t
		JOIN locations h ON h.id = t.home_location_id
		LEFT JOIN locations c ON c.id = t.current_location_id
		WHERE t.id = $1`, id)
	if err := row.Scan(&t.ID, &homeIdx, &homeID, &homeLat, &homeLng,
		&curIdx, &curID, &curLat, &curLng, &vanID, &scheduleRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	t.Home = model.Location{Index: homeIdx, ID: homeID, Lat: homeLat, Lng: homeLng}
	if curIdx.Valid {
		t.Current = &model.Location{Index: int(curIdx.Int64), ID: curID.String, Lat: curLat.Float64, Lng: curLng.Float64}
	}
	if vanID.Valid {
		van, err := p.loadVan(ctx, int(vanID.Int64))
		if err != nil {
			return t, err
		}
		t.Van = van
	}
	if len(scheduleRaw) > 0 {
		if err := json.Unmarshal(scheduleRaw, &t.Schedule); err != nil {
			return t, err
		}
	}
	return t, nil
}

func (p *Postgres) loadVan(ctx context.Context, vanID int) (*model.Van, error) {
	van := &model.Van{ID: vanID}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, category, model FROM equipment WHERE van_id=$1 ORDER BY id`, vanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var eq model.Equipment
		if err := rows.Scan(&eq.ID, &eq.Category, &eq.Model); err != nil {
			return nil, err
		}
		van.Equipment = append(van.Equipment, eq)
	}
	return van, rows.Err()
}

// ReplaceSchedule swaps the technician's stored schedule wholesale. The
// schedule column is jsonb so a half-written plan can never be observed.
func (p *Postgres) ReplaceSchedule(ctx context.Context, technicianID int, s model.Schedule) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE technicians SET schedule=$1, schedule_updated_at=now() WHERE id=$2`, raw, technicianID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// WorkingHours resolves a relative day against per-weekday rows, falling back
// to the stock weekday window when no row exists. A row with zero minutes
// marks the day off.
func (p *Postgres) WorkingHours(ctx context.Context, technicianID, day int) (*model.Availability, error) {
	date := timeutil.DayDate(p.Now(), day)
	var startMin, endMin int
	err := p.db.QueryRowContext(ctx,
		`SELECT start_min, end_min FROM technician_hours WHERE technician_id=$1 AND weekday=$2`,
		technicianID, int(date.Weekday())).Scan(&startMin, &endMin)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultHours(p.Now(), day), nil
	}
	if err != nil {
		return nil, err
	}
	if endMin <= startMin {
		return nil, nil
	}
	start := date.Add(time.Duration(startMin) * time.Minute)
	end := date.Add(time.Duration(endMin) * time.Minute)
	return &model.Availability{Day: day, Start: start, End: end, Duration: end.Sub(start)}, nil
}

const jobColumns = `
	j.id, j.order_id, j.service_id, j.service_category, j.vehicle_model_id,
	l.id, l.external_id, l.lat, l.lng,
	j.duration_sec, j.priority, j.status,
	j.assigned_technician, j.fixed_assignment, j.fixed_schedule_time,
	j.estimated_start, j.estimated_end, j.customer_eta_start, j.customer_eta_end`

func (p *Postgres) ListSchedulableJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs j JOIN locations l ON l.id = j.location_id
		WHERE j.status IN ('pending_review','pending_revisit')
		ORDER BY j.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (p *Postgres) ListAssignedJobs(ctx context.Context, technicianID int) ([]model.Job, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs j JOIN locations l ON l.id = j.location_id
		WHERE j.assigned_technician=$1 AND j.status IN ('assigned','scheduled')
		ORDER BY j.id`, technicianID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]model.Job, error) {
	var out []model.Job
	for rows.Next() {
		var j model.Job
		var category sql.NullString
		var vehicleModelID sql.NullInt64
		var assigned sql.NullInt64
		var durationSec int64
		var fixed, estStart, estEnd, etaStart, etaEnd sql.NullTime
		if err := rows.Scan(&j.ID, &j.OrderID, &j.ServiceID, &category, &vehicleModelID,
			&j.Location.Index, &j.Location.ID, &j.Location.Lat, &j.Location.Lng,
			&durationSec, &j.Priority, &j.Status,
			&assigned, &j.FixedAssignment, &fixed,
			&estStart, &estEnd, &etaStart, &etaEnd); err != nil {
			return nil, err
		}
		j.ServiceCategory = model.Category(category.String)
		j.VehicleModelID = int(vehicleModelID.Int64)
		j.Duration = time.Duration(durationSec) * time.Second
		if assigned.Valid {
			id := int(assigned.Int64)
			j.AssignedTechnician = &id
		}
		j.FixedScheduleTime = nullTimePtr(fixed)
		j.EstimatedStart = nullTimePtr(estStart)
		j.EstimatedEnd = nullTimePtr(estEnd)
		j.CustomerETAStart = nullTimePtr(etaStart)
		j.CustomerETAEnd = nullTimePtr(etaEnd)
		out = append(out, j)
	}
	return out, rows.Err()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time.UTC()
	return &ts
}

func (p *Postgres) UpdateJobAssignment(ctx context.Context, jobID int, technicianID *int, status model.JobStatus) error {
	var tech any
	if technicianID != nil {
		tech = *technicianID
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE jobs SET assigned_technician=$1, status=$2 WHERE id=$3`, tech, status, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) UpdateJobFixedTime(ctx context.Context, jobID int, fixed *time.Time) error {
	var ft any
	if fixed != nil {
		ft = fixed.UTC()
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE jobs SET fixed_schedule_time=$1 WHERE id=$2`, ft, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobETAs writes every propagated timestamp in one transaction so a
// partially stamped batch never becomes visible.
func (p *Postgres) UpdateJobETAs(ctx context.Context, etas []model.JobETA) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range etas {
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs
			SET estimated_start=$1, estimated_end=$2, customer_eta_start=$3, customer_eta_end=$4
			WHERE id=$5`,
			timeArg(e.EstimatedStart), timeArg(e.EstimatedEnd),
			timeArg(e.CustomerETAStart), timeArg(e.CustomerETAEnd), e.JobID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (p *Postgres) EquipmentRequirement(ctx context.Context, category model.Category, vehicleModelID, serviceID int) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT equipment_model FROM equipment_requirements
		WHERE category=$1 AND vehicle_model_id=$2 AND service_id=$3
		ORDER BY equipment_model`, category, vehicleModelID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ Store = (*Postgres)(nil)
