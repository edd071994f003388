// Package travel provides the travel-time lookup used by the optimizer and
// scheduler. Production deployments feed a precomputed matrix from a distance
// service; the haversine estimator is the swappable stand-in.
package travel

import (
	"context"
	"math"
	"time"
)

// Unreachable is the cost returned for a missing matrix entry. It is an
// enormous but finite number of seconds so a node with no route to it becomes
// effectively unreachable without overflowing cost arithmetic.
const Unreachable int64 = 999999

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}

// Matrix is a partial from→to travel-time lookup in seconds. A missing entry
// means unreachable, never zero.
type Matrix map[int]map[int]int64

// At returns the travel time between two location indices, or Unreachable if
// the matrix has no entry.
func (m Matrix) At(from, to int) int64 {
	if row, ok := m[from]; ok {
		if v, ok := row[to]; ok {
			return v
		}
	}
	return Unreachable
}

// Has reports whether the matrix carries an entry for from→to.
func (m Matrix) Has(from, to int) bool {
	row, ok := m[from]
	if !ok {
		return false
	}
	_, ok = row[to]
	return ok
}

// Set stores a travel time, allocating the row if needed.
func (m Matrix) Set(from, to int, seconds int64) {
	row, ok := m[from]
	if !ok {
		row = map[int]int64{}
		m[from] = row
	}
	row[to] = seconds
}

// Estimator computes travel time between two coordinates.
type Estimator interface {
	TravelTime(ctx context.Context, from, to Point) (time.Duration, error)
}

// Haversine estimates travel time from straight-line distance at a fixed
// average speed with a minimum floor. It stands in for a real distance
// service.
type Haversine struct {
	SpeedMph  float64
	MinTravel time.Duration
}

// NewHaversine returns an estimator with the default 30 mph speed and
// 5 minute floor.
func NewHaversine() *Haversine {
	return &Haversine{SpeedMph: 30, MinTravel: 5 * time.Minute}
}

func (h *Haversine) TravelTime(_ context.Context, from, to Point) (time.Duration, error) {
	speed := h.SpeedMph
	if speed <= 0 {
		speed = 30
	}
	miles := haversineMiles(from.Lat, from.Lng, to.Lat, to.Lng)
	d := time.Duration(miles / speed * float64(time.Hour))
	if d < h.MinTravel {
		d = h.MinTravel
	}
	return d.Truncate(time.Second), nil
}

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 3959.87433 // Earth radius in miles
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))
	return r * c
}

// BuildMatrix computes a full matrix over the given points, indexed by slice
// position. Estimator failures leave the entry absent, which reads back as
// Unreachable.
func BuildMatrix(ctx context.Context, est Estimator, points []Point) Matrix {
	m := Matrix{}
	for i, from := range points {
		for j, to := range points {
			if i == j {
				m.Set(i, j, 0)
				continue
			}
			d, err := est.TravelTime(ctx, from, to)
			if err != nil {
				continue
			}
			m.Set(i, j, int64(d/time.Second))
		}
	}
	return m
}
