package notify

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"strconv"
	"time"
)

type Worker struct {
	Publisher   *Publisher
	HTTP        *http.Client
	Stop        chan struct{}
	MaxAttempts int
}

func NewWorker(p *Publisher) *Worker {
	max := 10
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			max = n
		}
	}
	return &Worker{Publisher: p, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: max}
}

func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	items := w.Publisher.fetchDue(time.Now(), 50)
	for _, it := range items {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.Subscription.URL, bytes.NewReader(it.Payload))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-Type", it.EventType)
		if it.Subscription.Secret != "" {
			req.Header.Set("X-Signature", SignHMAC(it.Subscription.Secret, it.Payload))
		}
		success := false
		resp, err := w.HTTP.Do(req)
		if err == nil && resp != nil {
			if resp.Body != nil {
				_ = resp.Body.Close()
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				success = true
			}
		}
		if success {
			continue
		}
		it.Attempts++
		if it.Attempts >= w.MaxAttempts {
			continue
		}
		it.NextAttemptAt = time.Now().Add(nextBackoff(it.Attempts))
		w.Publisher.requeue(it)
	}
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
