package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/warden/internal/observability"
)

// cronParser accepts standard 5-field cron expressions plus descriptors like
// @hourly.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SweeperConfig configures periodic pruning of remembered decisions.
type SweeperConfig struct {
	// Schedule is a cron expression for when to prune. Defaults to @hourly.
	Schedule string

	// Retention is how long remembered decisions are kept. Defaults to 30
	// days.
	Retention time.Duration

	// Logger for sweep events. Defaults to a stderr logger.
	Logger *observability.Logger
}

// Sweeper prunes stale remembered decisions on a cron schedule. Sessions that
// end without an explicit Clear would otherwise accumulate in a durable store
// forever.
type Sweeper struct {
	store     Store
	schedule  cron.Schedule
	retention time.Duration
	logger    *observability.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSweeper creates a sweeper for the given store.
func NewSweeper(store Store, config SweeperConfig) (*Sweeper, error) {
	if config.Schedule == "" {
		config.Schedule = "@hourly"
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}
	logger := config.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}

	schedule, err := cronParser.Parse(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Schedule, err)
	}

	return &Sweeper{
		store:     store,
		schedule:  schedule,
		retention: config.Retention,
		logger:    logger,
	}, nil
}

// Start begins the sweep loop. It returns immediately; sweeps run in the
// background until Stop or ctx cancellation.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.store.Prune(ctx, s.retention)
	if err != nil {
		s.logger.Error(ctx, "failed to prune remembered decisions", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info(ctx, "pruned remembered decisions",
			"removed", removed,
			"retention", s.retention.String(),
		)
	}
}
