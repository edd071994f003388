package opt

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"
)

// state is a working assignment: per-vehicle visit orders (node indices into
// Problem.Nodes) plus the set of unassigned nodes. Routes in a state are
// always feasible; cost differences come from travel and drop penalties.
type state struct {
	routes     [][]int
	unassigned map[int]bool
}

// Solve runs the optimizer under a hard wall-clock budget. It builds a seed
// solution by cheapest feasible insertion (fixed-time nodes first), then
// improves it with removal/reinsertion operators under simulated-annealing
// acceptance, the search loop adapted to the drop-penalty objective. The best
// solution found is returned when the budget or ctx expires; ErrInputInvalid
// is the only error.
func Solve(ctx context.Context, p Problem, seed int64, budget time.Duration) (Solution, Metrics, error) {
	started := time.Now()
	if err := p.validate(); err != nil {
		return Solution{Status: StatusError}, Metrics{}, err
	}
	if budget <= 0 {
		budget = time.Second
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	maxPrio := p.maxPriority()

	curr := seedState(p)
	best := curr.clone()
	currCost := p.cost(curr, maxPrio)
	bestCost := currCost

	m := Metrics{BestCost: bestCost}
	temp := float64(currCost)/20 + 1
	const cooling = 0.995
	deadline := started.Add(budget)

	for len(p.Nodes) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			// abandon search, keep best found
			deadline = time.Now()
			continue
		default:
		}
		m.Iterations++
		k := 1 + rng.Intn(3)
		cand := curr.clone()
		var removed []int
		if rng.Intn(2) == 0 {
			removed = randomRemoval(cand, k, rng)
		} else {
			removed = relatedRemoval(p, cand, k, rng)
		}
		pool := append(removed, cand.unassignedList()...)
		for _, ni := range pool {
			cand.unassigned[ni] = true
		}
		if rng.Intn(2) == 0 {
			greedyInsertAll(p, cand, pool)
		} else {
			regretInsertAll(p, cand, pool)
		}
		candCost := p.cost(cand, maxPrio)
		delta := float64(candCost - currCost)
		if delta < 0 || rng.Float64() < math.Exp(-delta/(temp+1e-9)) {
			curr = cand
			currCost = candCost
			if candCost < bestCost {
				best = cand.clone()
				bestCost = candCost
				m.Improvements++
				m.BestCost = bestCost
			}
		}
		temp *= cooling
	}

	m.Elapsed = time.Since(started)
	return p.buildSolution(best, bestCost), m, nil
}

// seedState inserts fixed-time nodes first (ascending fixed start), then the
// rest by ascending priority number, each at its cheapest feasible position.
func seedState(p Problem) *state {
	st := &state{routes: make([][]int, len(p.Vehicles)), unassigned: map[int]bool{}}
	order := make([]int, len(p.Nodes))
	for i := range p.Nodes {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		na, nb := p.Nodes[order[a]], p.Nodes[order[b]]
		if (na.FixedStart != nil) != (nb.FixedStart != nil) {
			return na.FixedStart != nil
		}
		if na.FixedStart != nil && nb.FixedStart != nil && *na.FixedStart != *nb.FixedStart {
			return *na.FixedStart < *nb.FixedStart
		}
		return na.Priority < nb.Priority
	})
	for _, ni := range order {
		if vi, pos, ok := bestInsertion(p, st, ni); ok {
			st.insert(vi, pos, ni)
		} else {
			st.unassigned[ni] = true
		}
	}
	return st
}

// bestInsertion scans every eligible vehicle and position for node ni and
// returns the feasible insertion with the smallest travel increase.
func bestInsertion(p Problem, st *state, ni int) (vi, pos int, ok bool) {
	bestDelta := int64(math.MaxInt64)
	for v := range st.routes {
		if !p.eligible(v, ni) {
			continue
		}
		_, base, _ := p.evalRoute(v, st.routes[v])
		for i := 0; i <= len(st.routes[v]); i++ {
			cand := insertAt(st.routes[v], i, ni)
			_, tr, feasible := p.evalRoute(v, cand)
			if !feasible {
				continue
			}
			if d := tr - base; d < bestDelta {
				bestDelta, vi, pos, ok = d, v, i, true
			}
		}
	}
	return vi, pos, ok
}

// greedyInsertAll repeatedly inserts the pool node with the globally cheapest
// feasible insertion; nodes with none stay unassigned.
func greedyInsertAll(p Problem, st *state, pool []int) {
	remaining := append([]int(nil), pool...)
	for len(remaining) > 0 {
		bestIdx, bestVi, bestPos := -1, 0, 0
		bestDelta := int64(math.MaxInt64)
		for i, ni := range remaining {
			if vi, pos, ok := bestInsertion(p, st, ni); ok {
				cand := insertAt(st.routes[vi], pos, ni)
				_, tr, _ := p.evalRoute(vi, cand)
				_, base, _ := p.evalRoute(vi, st.routes[vi])
				if d := tr - base; d < bestDelta {
					bestDelta, bestIdx, bestVi, bestPos = d, i, vi, pos
				}
			}
		}
		if bestIdx < 0 {
			return
		}
		ni := remaining[bestIdx]
		st.insert(bestVi, bestPos, ni)
		delete(st.unassigned, ni)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
}

// regretInsertAll is regret-2 insertion: prefer the node that loses the most
// if it misses its best slot.
func regretInsertAll(p Problem, st *state, pool []int) {
	remaining := append([]int(nil), pool...)
	for len(remaining) > 0 {
		type cand struct {
			idx, vi, pos int
			best, second int64
		}
		chosen := cand{idx: -1, best: math.MaxInt64}
		bestRegret := int64(-1)
		for i, ni := range remaining {
			best1, best2 := int64(math.MaxInt64), int64(math.MaxInt64)
			bvi, bpos := -1, -1
			for v := range st.routes {
				if !p.eligible(v, ni) {
					continue
				}
				_, base, _ := p.evalRoute(v, st.routes[v])
				for pos := 0; pos <= len(st.routes[v]); pos++ {
					c := insertAt(st.routes[v], pos, ni)
					_, tr, feasible := p.evalRoute(v, c)
					if !feasible {
						continue
					}
					d := tr - base
					if d < best1 {
						best2, best1, bvi, bpos = best1, d, v, pos
					} else if d < best2 {
						best2 = d
					}
				}
			}
			if bvi < 0 {
				continue
			}
			regret := int64(0)
			if best2 != math.MaxInt64 {
				regret = best2 - best1
			}
			if regret > bestRegret || (regret == bestRegret && best1 < chosen.best) {
				bestRegret = regret
				chosen = cand{idx: i, vi: bvi, pos: bpos, best: best1, second: best2}
			}
		}
		if chosen.idx < 0 {
			return
		}
		ni := remaining[chosen.idx]
		st.insert(chosen.vi, chosen.pos, ni)
		delete(st.unassigned, ni)
		remaining = append(remaining[:chosen.idx], remaining[chosen.idx+1:]...)
	}
}

func randomRemoval(st *state, k int, rng *rand.Rand) []int {
	assigned := st.assignedList()
	removed := []int{}
	for i := 0; i < k && len(assigned) > 0; i++ {
		j := rng.Intn(len(assigned))
		removed = append(removed, assigned[j])
		assigned = append(assigned[:j], assigned[j+1:]...)
	}
	st.removeAll(removed)
	return removed
}

// relatedRemoval removes a cluster of nodes related to a random seed node by
// travel proximity and priority similarity.
func relatedRemoval(p Problem, st *state, k int, rng *rand.Rand) []int {
	assigned := st.assignedList()
	if len(assigned) == 0 {
		return nil
	}
	seedNi := assigned[rng.Intn(len(assigned))]
	type scored struct {
		ni    int
		score int64
	}
	rel := []scored{}
	for _, ni := range assigned {
		if ni == seedNi {
			continue
		}
		geo := p.Travel.At(p.Nodes[seedNi].Location, p.Nodes[ni].Location)
		prioGap := int64(p.Nodes[seedNi].Priority - p.Nodes[ni].Priority)
		if prioGap < 0 {
			prioGap = -prioGap
		}
		rel = append(rel, scored{ni: ni, score: geo + 600*prioGap})
	}
	sort.Slice(rel, func(a, b int) bool { return rel[a].score < rel[b].score })
	removed := []int{seedNi}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].ni)
	}
	st.removeAll(removed)
	return removed
}

func (p Problem) cost(st *state, maxPrio int) int64 {
	total := int64(0)
	for vi, order := range st.routes {
		_, tr, feasible := p.evalRoute(vi, order)
		if !feasible {
			// routes are kept feasible by construction; guard anyway
			return math.MaxInt64 / 2
		}
		total += tr
	}
	for ni := range st.unassigned {
		total += p.dropPenalty(ni, maxPrio)
	}
	return total
}

// buildSolution reconstructs stop timestamps from the best state. An
// unassigned never-droppable node means the model has no acceptable solution
// at all: every node is reported dropped and every vehicle idle.
func (p Problem) buildSolution(st *state, cost int64) Solution {
	for ni := range st.unassigned {
		if p.mandatory(ni) {
			all := make([]string, len(p.Nodes))
			for i, n := range p.Nodes {
				all[i] = n.ID
			}
			sort.Strings(all)
			return Solution{Status: StatusError, Unassigned: all, Cost: cost}
		}
	}
	sol := Solution{Cost: cost}
	for vi, order := range st.routes {
		stops, tr, _ := p.evalRoute(vi, order)
		r := Route{VehicleID: p.Vehicles[vi].ID, Stops: stops, TravelSec: tr}
		if len(stops) > 0 {
			r.ElapsedSec = stops[len(stops)-1].End - p.Vehicles[vi].EarliestStart
		}
		sol.Routes = append(sol.Routes, r)
	}
	for ni := range st.unassigned {
		sol.Unassigned = append(sol.Unassigned, p.Nodes[ni].ID)
	}
	sort.Strings(sol.Unassigned)
	switch {
	case len(p.Nodes) > 0 && len(sol.Unassigned) == len(p.Nodes):
		sol.Status = StatusError
	case len(sol.Unassigned) > 0:
		sol.Status = StatusPartial
	default:
		sol.Status = StatusSuccess
	}
	return sol
}

func (st *state) clone() *state {
	out := &state{routes: make([][]int, len(st.routes)), unassigned: map[int]bool{}}
	for i, r := range st.routes {
		out.routes[i] = append([]int(nil), r...)
	}
	for ni := range st.unassigned {
		out.unassigned[ni] = true
	}
	return out
}

func (st *state) insert(vi, pos, ni int) {
	st.routes[vi] = insertAt(st.routes[vi], pos, ni)
}

func (st *state) removeAll(nodes []int) {
	rm := map[int]bool{}
	for _, ni := range nodes {
		rm[ni] = true
	}
	for vi, r := range st.routes {
		keep := r[:0]
		for _, ni := range r {
			if !rm[ni] {
				keep = append(keep, ni)
			}
		}
		st.routes[vi] = keep
	}
}

func (st *state) assignedList() []int {
	out := []int{}
	for _, r := range st.routes {
		out = append(out, r...)
	}
	return out
}

func (st *state) unassignedList() []int {
	out := make([]int, 0, len(st.unassigned))
	for ni := range st.unassigned {
		out = append(out, ni)
	}
	sort.Ints(out)
	return out
}

func insertAt(order []int, pos, ni int) []int {
	out := make([]int, 0, len(order)+1)
	out = append(out, order[:pos]...)
	out = append(out, ni)
	out = append(out, order[pos:]...)
	return out
}
