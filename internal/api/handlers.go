package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldsched/internal/buildinfo"
	"fieldsched/internal/metrics"
	"fieldsched/internal/model"
	"fieldsched/internal/opt"
	"fieldsched/internal/store"
	"fieldsched/internal/timeutil"
)

// OptimizeHandler handles POST /v1/optimize
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateOptimizeRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	problem, err := problemFromWire(req)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
		return
	}
	sol, m, err := opt.Solve(r.Context(), problem, s.seed, s.budget)
	if err != nil {
		if errors.Is(err, opt.ErrInputInvalid) {
			writeProblem(w, http.StatusBadRequest, "Invalid optimize request", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Optimize failed", err.Error(), r.URL.Path)
		return
	}
	metrics.SolverRuns.WithLabelValues(string(sol.Status)).Inc()
	metrics.SolverDuration.Observe(m.Elapsed.Seconds())
	metrics.ItemsUnassigned.Add(float64(len(sol.Unassigned)))
	writeJSON(w, http.StatusOK, responseFromSolution(sol))
}

// AssignRunHandler handles POST /v1/assign/run: one full engine cycle over
// every pending job.
func (s *Server) AssignRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	res, err := s.Engine.RunCycle(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Assignment cycle failed", err.Error(), r.URL.Path)
		return
	}
	metrics.AssignDecisions.WithLabelValues("assigned").Add(float64(len(res.Assignments)))
	metrics.AssignDecisions.WithLabelValues("unassigned").Add(float64(len(res.UnassignedJobs)))
	writeJSON(w, http.StatusOK, res)
}

// TechniciansHandler handles GET /v1/technicians
func (s *Server) TechniciansHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	techs, err := s.Store.ListTechnicians(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List technicians failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": techs})
}

// TechnicianByIDHandler handles /v1/technicians/{id} and
// /v1/technicians/{id}/replan.
func (s *Server) TechnicianByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/technicians/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid technician id", parts[0], r.URL.Path)
		return
	}
	if len(parts) == 2 && parts[1] == "replan" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := s.Engine.RebuildSchedule(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "Technician not found", "", r.URL.Path)
				return
			}
			writeProblem(w, http.StatusInternalServerError, "Replan failed", err.Error(), r.URL.Path)
			return
		}
		tech, err := s.Store.GetTechnician(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Load technician failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, tech)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	tech, err := s.Store.GetTechnician(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Technician not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Load technician failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, tech)
}

// JobsHandler handles GET /v1/jobs: the schedulable backlog.
func (s *Server) JobsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobs, err := s.Store.ListSchedulableJobs(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List jobs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

// JobByIDHandler handles PUT /v1/jobs/{id}/fixed-time. A null or empty
// fixedTimeISO clears the pin.
func (s *Server) JobByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid job id", parts[0], r.URL.Path)
		return
	}
	if len(parts) != 2 || parts[1] != "fixed-time" || r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		FixedTimeISO string `json:"fixedTimeISO"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	var fixed *time.Time
	if req.FixedTimeISO != "" {
		ts, err := timeutil.ParseISO(req.FixedTimeISO)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid fixedTimeISO", err.Error(), r.URL.Path)
			return
		}
		fixed = &ts
	}
	if err := s.Store.UpdateJobFixedTime(r.Context(), id, fixed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Job not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Update fixed time failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobId": id, "fixedTimeISO": req.FixedTimeISO})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Event  string `json:"event"`
			URL    string `json:"url"`
			Secret string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url is required", r.URL.Path)
			return
		}
		if req.Event == "" {
			req.Event = "*"
		}
		writeJSON(w, http.StatusCreated, s.Pub.Subscribe(req.Event, req.URL, req.Secret))
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"items": s.Pub.Subscriptions()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if !s.Pub.Unsubscribe(id) {
		writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "build": buildinfo.Info()})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.ListTechnicians(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
