package api

import (
	"fmt"

	"fieldsched/internal/model"
	"fieldsched/internal/opt"
	"fieldsched/internal/timeutil"
	"fieldsched/internal/travel"
)

// problemFromWire converts the wire request into an optimizer problem.
// Timestamps parse as ISO-8601; ones without an offset are UTC. A negative
// end location index means the route is open-ended.
func problemFromWire(req model.OptimizeRequest) (opt.Problem, error) {
	p := opt.Problem{Travel: travel.Matrix(req.TravelTimeMatrix)}

	for _, t := range req.Technicians {
		earliest, err := timeutil.ParseISO(t.EarliestStartTimeISO)
		if err != nil {
			return p, fmt.Errorf("technician %d earliestStartTimeISO: %w", t.ID, err)
		}
		latest, err := timeutil.ParseISO(t.LatestEndTimeISO)
		if err != nil {
			return p, fmt.Errorf("technician %d latestEndTimeISO: %w", t.ID, err)
		}
		end := t.EndLocationIndex
		if end < 0 {
			end = opt.OpenEnd
		}
		p.Vehicles = append(p.Vehicles, opt.Vehicle{
			ID:            t.ID,
			StartLocation: t.StartLocationIndex,
			EndLocation:   end,
			EarliestStart: timeutil.ToEpoch(earliest),
			LatestEnd:     timeutil.ToEpoch(latest),
		})
	}

	fixed := map[string]int64{}
	for _, c := range req.FixedConstraints {
		ts, err := timeutil.ParseISO(c.FixedTimeISO)
		if err != nil {
			return p, fmt.Errorf("fixed constraint for %s: %w", c.ItemID, err)
		}
		fixed[c.ItemID] = timeutil.ToEpoch(ts)
	}

	for _, it := range req.Items {
		n := opt.Node{
			ID:          it.ID,
			Location:    it.LocationIndex,
			DurationSec: it.DurationSeconds,
			Priority:    it.Priority,
			Eligible:    it.EligibleTechnicianIds,
		}
		if ts, ok := fixed[it.ID]; ok {
			fs := ts
			n.FixedStart = &fs
		}
		p.Nodes = append(p.Nodes, n)
	}
	return p, nil
}

// responseFromSolution flattens the solver output onto the wire contract.
// Total duration is last stop end minus first arrival, not window elapsed.
func responseFromSolution(sol opt.Solution) model.OptimizeResponse {
	resp := model.OptimizeResponse{
		Status:            string(sol.Status),
		Routes:            []model.TechnicianRoute{},
		UnassignedItemIds: []string{},
	}
	if sol.Status == opt.StatusError {
		resp.Message = "no acceptable solution found"
	}
	for _, r := range sol.Routes {
		tr := model.TechnicianRoute{
			TechnicianID:           r.VehicleID,
			Stops:                  []model.RouteStop{},
			TotalTravelTimeSeconds: r.TravelSec,
		}
		for _, s := range r.Stops {
			tr.Stops = append(tr.Stops, model.RouteStop{
				ItemID:         s.NodeID,
				ArrivalTimeISO: timeutil.FormatISO(timeutil.FromEpoch(s.Arrival)),
				StartTimeISO:   timeutil.FormatISO(timeutil.FromEpoch(s.Start)),
				EndTimeISO:     timeutil.FormatISO(timeutil.FromEpoch(s.End)),
			})
		}
		if len(r.Stops) > 0 {
			tr.TotalDurationSeconds = r.Stops[len(r.Stops)-1].End - r.Stops[0].Arrival
		}
		resp.Routes = append(resp.Routes, tr)
	}
	resp.UnassignedItemIds = append(resp.UnassignedItemIds, sol.Unassigned...)
	return resp
}
