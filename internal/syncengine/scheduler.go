package syncengine

import (
	"context"
	"log"
	"time"
)

// Scheduler reconciles the signed-in owner every interval, and right away
// when triggered.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	trigger  chan struct{}
}

func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger asks for a pass soon; repeated calls before it runs coalesce.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.engine.session.IsLoggedIn() {
		return
	}
	if _, err := s.engine.Sync(ctx); err != nil && !isCancellation(err) {
		log.Printf("scheduled sync: %v", err)
	}
}
