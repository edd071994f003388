package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"fieldsched/internal/config"
	"fieldsched/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Config{SolverBudgetMS: 50, SolverSeed: 42})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

var isoRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`)

func TestOptimizeWireContract(t *testing.T) {
	s := newTestServer(t)
	req := map[string]any{
		"locations": []map[string]any{
			{"id": "depot", "index": 0, "lat": 40.0, "lng": -75.0},
			{"id": "cust-a", "index": 1, "lat": 40.1, "lng": -75.1},
			{"id": "cust-b", "index": 2, "lat": 40.2, "lng": -75.2},
		},
		"technicians": []map[string]any{
			{"id": 1, "startLocationIndex": 0, "endLocationIndex": -1,
				"earliestStartTimeISO": "2025-03-03T08:00:00", // naive input is UTC
				"latestEndTimeISO":     "2025-03-03T18:00:00Z"},
		},
		"items": []map[string]any{
			{"id": "item-a", "locationIndex": 1, "durationSeconds": 3600, "priority": 1, "eligibleTechnicianIds": []int{1}},
			{"id": "item-b", "locationIndex": 2, "durationSeconds": 1800, "priority": 2, "eligibleTechnicianIds": []int{1}},
		},
		"fixedConstraints": []map[string]any{
			{"itemId": "item-b", "fixedTimeISO": "2025-03-03T14:00:00Z"},
		},
		"travelTimeMatrix": map[string]map[string]int64{
			"0": {"0": 0, "1": 600, "2": 900},
			"1": {"0": 600, "1": 0, "2": 600},
			"2": {"0": 900, "1": 600, "2": 0},
		},
	}
	b, _ := json.Marshal(req)
	rr := httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(b)))
	if rr.Code != 200 {
		t.Fatalf("optimize: got %d body %s", rr.Code, rr.Body.String())
	}
	var resp model.OptimizeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" {
		t.Fatalf("status: got %s (unassigned %v)", resp.Status, resp.UnassignedItemIds)
	}
	if len(resp.Routes) != 1 || len(resp.Routes[0].Stops) != 2 {
		t.Fatalf("routes: got %+v", resp.Routes)
	}
	for _, st := range resp.Routes[0].Stops {
		for _, ts := range []string{st.ArrivalTimeISO, st.StartTimeISO, st.EndTimeISO} {
			if !isoRe.MatchString(ts) {
				t.Fatalf("timestamp %q is not second-precision UTC with Z", ts)
			}
		}
		if st.ItemID == "item-b" && st.StartTimeISO != "2025-03-03T14:00:00Z" {
			t.Fatalf("fixed item start: got %s, want pinned time", st.StartTimeISO)
		}
	}
	if resp.Routes[0].TotalTravelTimeSeconds <= 0 {
		t.Fatalf("travel: got %d", resp.Routes[0].TotalTravelTimeSeconds)
	}
}

func TestOptimizeRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader([]byte("{not json"))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("garbage json: got %d", rr.Code)
	}

	// no technicians
	rr = httptest.NewRecorder()
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader([]byte(`{"items":[]}`))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("no technicians: got %d", rr.Code)
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != http.StatusBadRequest {
		t.Fatalf("problem body: %s", rr.Body.String())
	}

	// unparseable technician window
	rr = httptest.NewRecorder()
	body := []byte(`{"technicians":[{"id":1,"earliestStartTimeISO":"soon","latestEndTimeISO":"later"}]}`)
	s.OptimizeHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/optimize", bytes.NewReader(body)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad timestamps: got %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	body := []byte(`{"event":"job.assigned","url":"http://example.com/hook","secret":"s"}`)
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d", rr.Code)
	}
	var sub struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil || sub.ID == "" {
		t.Fatalf("create body: %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 {
		t.Fatalf("list: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete twice: got %d", rr.Code)
	}
}

func TestTechnicianAndJobNotFound(t *testing.T) {
	s := newTestServer(t)

	rr := httptest.NewRecorder()
	s.TechnicianByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/technicians/42", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("technician: got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	body := []byte(`{"fixedTimeISO":"2025-03-03T10:00:00Z"}`)
	s.JobByIDHandler(rr, httptest.NewRequest(http.MethodPut, "/v1/jobs/42/fixed-time", bytes.NewReader(body)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("job fixed-time: got %d", rr.Code)
	}
}

func TestAssignRunEmptyBacklog(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.AssignRunHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/assign/run", nil))
	if rr.Code != 200 {
		t.Fatalf("assign run: got %d body %s", rr.Code, rr.Body.String())
	}
}
