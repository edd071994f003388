// Package main runs a demo WebSocket client for engine events: it connects to
// the event stream, triggers an assignment cycle, and prints what arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	apiKey := os.Getenv("API_KEY")

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/eta/ws"}
	hdr := http.Header{}
	if apiKey != "" {
		hdr.Set("api-key", apiKey)
	}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Data))
		}
	}()

	// Trigger an assignment cycle so events flow
	time.Sleep(500 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/assign/run", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("api-key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var cycle struct {
		Assignments      []json.RawMessage `json:"assignments"`
		UnassignedJobs   []int             `json:"unassignedJobs"`
		UnassignedOrders []int             `json:"unassignedOrders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cycle); err != nil {
		log.Fatal(err)
	}
	log.Printf("cycle: %d assigned, %d jobs unassigned", len(cycle.Assignments), len(cycle.UnassignedJobs))

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
