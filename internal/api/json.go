package api

import (
	"encoding/json"
	"net/http"
)

// Problem is the RFC 7807 error body every non-2xx response uses. Instance
// carries the request path so clients can correlate.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// encode errors are unrecoverable here, the status line is already out
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	p := Problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Instance: instance}
	writeJSON(w, status, p)
}
