// Package notify fans engine events out to registered webhook endpoints with
// signed, retried deliveries.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldsched/internal/timeutil"
)

// Subscription is one webhook endpoint. Event is an exact event type or "*".
type Subscription struct {
	ID     string `json:"id"`
	Event  string `json:"event"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// Delivery is one pending webhook send.
type Delivery struct {
	ID            string
	Subscription  Subscription
	EventType     string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
}

// Publisher keeps the subscription registry and the delivery queue. Publish
// never blocks; the worker drains the queue in the background.
type Publisher struct {
	mu    sync.Mutex
	subs  map[string]Subscription
	queue []*Delivery
}

func NewPublisher() *Publisher {
	return &Publisher{subs: map[string]Subscription{}}
}

// Subscribe registers an endpoint and returns it with its minted id.
func (p *Publisher) Subscribe(event, url, secret string) Subscription {
	s := Subscription{ID: fmt.Sprintf("sub_%s", uuid.New().String()[:8]), Event: event, URL: url, Secret: secret}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[s.ID] = s
	return s
}

func (p *Publisher) Unsubscribe(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[id]; !ok {
		return false
	}
	delete(p.subs, id)
	return true
}

func (p *Publisher) Subscriptions() []Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s)
	}
	return out
}

// Publish enqueues one delivery per matching subscription.
func (p *Publisher) Publish(eventType string, data any) {
	envelope := map[string]any{
		"id":   fmt.Sprintf("evt_%s", uuid.New().String()[:8]),
		"type": eventType,
		"ts":   timeutil.FormatISO(time.Now()),
		"data": data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("notify: drop unmarshalable %s event: %v", eventType, err)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		if s.Event != "*" && s.Event != eventType {
			continue
		}
		p.queue = append(p.queue, &Delivery{
			ID:           fmt.Sprintf("dlv_%s", uuid.New().String()[:8]),
			Subscription: s,
			EventType:    eventType,
			Payload:      body,
		})
	}
}

// fetchDue pops up to limit deliveries whose next attempt is due.
func (p *Publisher) fetchDue(now time.Time, limit int) []*Delivery {
	p.mu.Lock()
	defer p.mu.Unlock()
	var due []*Delivery
	keep := p.queue[:0]
	for _, d := range p.queue {
		if len(due) < limit && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		} else {
			keep = append(keep, d)
		}
	}
	p.queue = keep
	return due
}

// requeue puts a failed delivery back with its next attempt time set.
func (p *Publisher) requeue(d *Delivery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, d)
}

// Pending reports the queue depth, for readiness and tests.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
