package model

// Wire types for the route-optimization request/response. All timestamps are
// ISO-8601 strings; outputs are UTC with second precision and a Z suffix,
// inputs without an offset are treated as UTC.

type OptimizeRequest struct {
	Locations        []WireLocation    `json:"locations"`
	Technicians      []WireTechnician  `json:"technicians"`
	Items            []WireItem        `json:"items"`
	FixedConstraints []WireConstraint  `json:"fixedConstraints,omitempty"`
	TravelTimeMatrix map[int]map[int]int64 `json:"travelTimeMatrix"`
}

type WireLocation struct {
	ID    string  `json:"id"`
	Index int     `json:"index"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

type WireTechnician struct {
	ID                  int    `json:"id"`
	StartLocationIndex  int    `json:"startLocationIndex"`
	EndLocationIndex    int    `json:"endLocationIndex"`
	EarliestStartTimeISO string `json:"earliestStartTimeISO"`
	LatestEndTimeISO    string `json:"latestEndTimeISO"`
}

type WireItem struct {
	ID                    string `json:"id"`
	LocationIndex         int    `json:"locationIndex"`
	DurationSeconds       int64  `json:"durationSeconds"`
	Priority              int    `json:"priority"`
	EligibleTechnicianIds []int  `json:"eligibleTechnicianIds"`
}

type WireConstraint struct {
	ItemID       string `json:"itemId"`
	FixedTimeISO string `json:"fixedTimeISO"`
}

type OptimizeResponse struct {
	Status            string            `json:"status"` // success, partial, error
	Message           string            `json:"message,omitempty"`
	Routes            []TechnicianRoute `json:"routes"`
	UnassignedItemIds []string          `json:"unassignedItemIds"`
}

type TechnicianRoute struct {
	TechnicianID           int         `json:"technicianId"`
	Stops                  []RouteStop `json:"stops"`
	TotalTravelTimeSeconds int64       `json:"totalTravelTimeSeconds"`
	TotalDurationSeconds   int64       `json:"totalDurationSeconds"`
}

type RouteStop struct {
	ItemID         string `json:"itemId"`
	ArrivalTimeISO string `json:"arrivalTimeISO"`
	StartTimeISO   string `json:"startTimeISO"`
	EndTimeISO     string `json:"endTimeISO"`
}
