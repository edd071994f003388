package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldsched/internal/api"
	"fieldsched/internal/config"
	"fieldsched/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	srv, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Optimization
	mux.HandleFunc("/v1/optimize", srv.OptimizeHandler)

	// Assignment cycle
	mux.HandleFunc("/v1/assign/run", srv.AssignRunHandler)

	// Technicians & schedules
	mux.HandleFunc("/v1/technicians", srv.TechniciansHandler)
	mux.HandleFunc("/v1/technicians/", srv.TechnicianByIDHandler) // includes /replan

	// Jobs
	mux.HandleFunc("/v1/jobs", srv.JobsHandler)
	mux.HandleFunc("/v1/jobs/", srv.JobByIDHandler) // /fixed-time

	// Webhook subscriptions
	mux.HandleFunc("/v1/subscriptions", srv.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srv.SubscriptionByIDHandler)

	// Event stream
	mux.HandleFunc("/v1/eta/ws", srv.ETAStreamHandler)

	// Health & metrics
	mux.HandleFunc("/healthz", srv.HealthHandler)
	mux.HandleFunc("/readyz", srv.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	handler := api.WithMetrics(api.WithRateLimit(api.WithAPIKey(mux), cfg.RateLimitRPS, cfg.RateLimitBurst))
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("API listening on %s", addr)
	worker := srv.NewNotifyWorker()
	worker.Start()
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
