// Package opt implements the single-day multi-vehicle route optimizer: time
// windows, equipment eligibility, exact fixed-time pinning, and
// priority-weighted soft drops, solved by constructive insertion plus local
// search under a wall-clock budget.
package opt

import (
	"errors"
	"fmt"
	"time"

	"fieldsched/internal/travel"
)

// DefaultBasePenalty is the drop-penalty base. It must dominate realistic
// travel costs so that priority ordering, not travel savings, decides who gets
// dropped under pressure. Tunable via config.
const DefaultBasePenalty int64 = 100000

// OpenEnd marks a vehicle with no return leg: the route ends at its last stop.
const OpenEnd = -1

// mandatoryPenalty prices the drop of a never-droppable node. Large enough
// that no combination of travel costs and regular penalties competes.
const mandatoryPenalty int64 = 1 << 40

// Vehicle is one technician's vehicle for the day. Times are epoch seconds;
// the window [EarliestStart, LatestEnd] is closed.
type Vehicle struct {
	ID            int
	StartLocation int
	EndLocation   int // OpenEnd for no return leg
	EarliestStart int64
	LatestEnd     int64
}

// Node is a visitable unit. Eligible lists the vehicle IDs allowed to serve
// it; a node with no eligible vehicle is never visited. FixedStart, when set,
// pins the solved start exactly.
type Node struct {
	ID          string
	Location    int
	DurationSec int64
	Priority    int // lower number = more important
	Eligible    []int
	FixedStart  *int64
}

// Problem is a single-day routing instance.
type Problem struct {
	Vehicles    []Vehicle
	Nodes       []Node
	Travel      travel.Matrix
	BasePenalty int64
}

// Status classifies a solve outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// Stop is one solved visit. Arrival is previous departure plus travel; Start
// may exceed Arrival when waiting on a fixed time; End = Start + duration.
type Stop struct {
	NodeID  string
	Arrival int64
	Start   int64
	End     int64
}

// Route is one vehicle's solved visit sequence. TravelSec sums every
// traversed edge including the depot legs.
type Route struct {
	VehicleID  int
	Stops      []Stop
	TravelSec  int64
	ElapsedSec int64 // last stop end minus vehicle earliest start
}

// Solution is the solver output.
type Solution struct {
	Status     Status
	Routes     []Route
	Unassigned []string
	Cost       int64
}

// Metrics reports search effort for observability.
type Metrics struct {
	Iterations   int
	Improvements int
	BestCost     int64
	Elapsed      time.Duration
}

// ErrInputInvalid rejects malformed or self-contradictory problems before any
// solving.
var ErrInputInvalid = errors.New("invalid optimizer input")

func (p Problem) validate() error {
	if len(p.Vehicles) == 0 {
		return fmt.Errorf("%w: no vehicles", ErrInputInvalid)
	}
	for _, v := range p.Vehicles {
		if v.EarliestStart > v.LatestEnd {
			return fmt.Errorf("%w: vehicle %d window start after end", ErrInputInvalid, v.ID)
		}
	}
	seen := map[string]bool{}
	for _, n := range p.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", ErrInputInvalid)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: duplicate node id %s", ErrInputInvalid, n.ID)
		}
		seen[n.ID] = true
		if n.DurationSec < 0 {
			return fmt.Errorf("%w: node %s has negative duration", ErrInputInvalid, n.ID)
		}
	}
	return nil
}

// maxPriority returns the highest (least important) priority number in the
// batch, defaulting to 1 for an empty batch.
func (p Problem) maxPriority() int {
	max := 1
	for _, n := range p.Nodes {
		if n.Priority > max {
			max = n.Priority
		}
	}
	return max
}

// dropPenalty prices leaving node ni unassigned. Never negative.
func (p Problem) dropPenalty(ni, maxPrio int) int64 {
	if p.mandatory(ni) {
		return mandatoryPenalty
	}
	base := p.BasePenalty
	if base <= 0 {
		base = DefaultBasePenalty
	}
	pen := base * int64(maxPrio-p.Nodes[ni].Priority+1)
	if pen < 0 {
		pen = 0
	}
	return pen
}

// mandatory reports whether node ni sits at any vehicle depot location. Such
// nodes are never droppable. Preserved from the source system even though an
// unreachable depot-collocated node then forces total failure.
func (p Problem) mandatory(ni int) bool {
	loc := p.Nodes[ni].Location
	for _, v := range p.Vehicles {
		if loc == v.StartLocation || (v.EndLocation != OpenEnd && loc == v.EndLocation) {
			return true
		}
	}
	return false
}

func (p Problem) eligible(vi, ni int) bool {
	id := p.Vehicles[vi].ID
	for _, e := range p.Nodes[ni].Eligible {
		if e == id {
			return true
		}
	}
	return false
}

// evalRoute propagates time forward through a visit order for vehicle vi.
// Returns the solved stops, the summed travel (depot legs included), and
// feasibility. Infeasibility causes: unreachable leg, arrival after a fixed
// start, or overrun of the vehicle window.
func (p Problem) evalRoute(vi int, order []int) ([]Stop, int64, bool) {
	v := p.Vehicles[vi]
	t := v.EarliestStart
	loc := v.StartLocation
	var travelSec int64
	stops := make([]Stop, 0, len(order))
	for _, ni := range order {
		n := p.Nodes[ni]
		leg := p.Travel.At(loc, n.Location)
		if leg >= travel.Unreachable {
			return nil, 0, false
		}
		arrival := t + leg
		start := arrival
		if n.FixedStart != nil {
			if arrival > *n.FixedStart {
				return nil, 0, false
			}
			start = *n.FixedStart
		}
		end := start + n.DurationSec
		if end > v.LatestEnd {
			return nil, 0, false
		}
		stops = append(stops, Stop{NodeID: n.ID, Arrival: arrival, Start: start, End: end})
		travelSec += leg
		t = end
		loc = n.Location
	}
	if v.EndLocation != OpenEnd && len(order) > 0 {
		leg := p.Travel.At(loc, v.EndLocation)
		if leg >= travel.Unreachable {
			return nil, 0, false
		}
		travelSec += leg
		t += leg
	}
	if t > v.LatestEnd {
		return nil, 0, false
	}
	return stops, travelSec, true
}
