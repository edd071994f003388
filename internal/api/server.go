// Package api implements the HTTP surface of the scheduling engine.
package api

import (
	"context"
	"os"
	"strings"
	"time"

	"fieldsched/internal/config"
	"fieldsched/internal/model"
	"fieldsched/internal/notify"
	"fieldsched/internal/sched"
	"fieldsched/internal/store"
	"fieldsched/internal/travel"
)

type Server struct {
	Store  store.Store
	Engine *sched.Engine
	Pub    *notify.Publisher
	Broker EventBroker

	budget time.Duration
	seed   int64
}

// NewServer wires the full engine. If DATABASE_URL is unset, uses in-memory
// store; if REDIS_URL is set, the travel estimator gains a Redis cache and
// events fan out over Redis Pub/Sub.
func NewServer(cfg config.Config) (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		s = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	var est travel.Estimator = &travel.Haversine{SpeedMph: cfg.AvgSpeedMph, MinTravel: cfg.MinTravel}
	if cfg.AvgSpeedMph <= 0 {
		est = travel.NewHaversine()
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		if cached, err := travel.NewRedisCache(url, est); err == nil {
			est = cached
		}
	}

	pub := notify.NewPublisher()
	planner := &sched.Planner{
		Hours:        s.WorkingHours,
		Travel:       travelFunc(est),
		Horizon:      cfg.HorizonDays,
		SolverBudget: cfg.SolverBudget(),
		BasePenalty:  cfg.BasePenalty,
		Seed:         cfg.SolverSeed,
	}
	engine := &sched.Engine{
		Store:   s,
		Planner: planner,
		Buffer:  cfg.ETABuffer,
		Events:  &eventFan{pub: pub, broker: broker},
	}
	return &Server{
		Store:  s,
		Engine: engine,
		Pub:    pub,
		Broker: broker,
		budget: cfg.SolverBudget(),
		seed:   cfg.SolverSeed,
	}, nil
}

// travelFunc adapts an estimator to the scheduler's infallible lookup. The
// haversine fallback covers estimator errors so planning never stalls on a
// cache hiccup.
func travelFunc(est travel.Estimator) model.TravelFunc {
	fallback := travel.NewHaversine()
	return func(from, to model.Location) time.Duration {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a := travel.Point{Lat: from.Lat, Lng: from.Lng}
		b := travel.Point{Lat: to.Lat, Lng: to.Lng}
		d, err := est.TravelTime(ctx, a, b)
		if err != nil {
			d, _ = fallback.TravelTime(ctx, a, b)
		}
		return d
	}
}

// eventFan bridges engine events to both the webhook publisher and the
// streaming broker.
type eventFan struct {
	pub    *notify.Publisher
	broker EventBroker
}

func (f *eventFan) Publish(eventType string, payload any) {
	f.pub.Publish(eventType, payload)
	f.broker.Publish("events", Event{Type: eventType, Data: payload})
}

// NewNotifyWorker creates the background webhook delivery worker.
func (s *Server) NewNotifyWorker() *notify.Worker {
	return notify.NewWorker(s.Pub)
}
