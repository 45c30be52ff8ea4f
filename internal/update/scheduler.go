package update

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule runs the check once a day
const DefaultSchedule = "@every 24h"

const checkTimeout = 30 * time.Second

// Scheduler runs update checks on start and then on a cron schedule
type Scheduler struct {
	checker  *Checker
	schedule string
	onResult func(Result)

	cron        *cron.Cron
	cronEntryID cron.EntryID

	mu      sync.RWMutex
	running bool
	last    *Result
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. onResult, when set, is called after
// every successful check.
func NewScheduler(checker *Checker, schedule string, onResult func(Result)) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		checker:  checker,
		schedule: schedule,
		onResult: onResult,
		cron:     cron.New(),
	}
}

// Start schedules the check and runs one immediately in the background
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return err
	}
	s.cronEntryID = id
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.cron.Start()

	go s.run()

	log.Info().Str("schedule", s.schedule).Msg("Update checker started")
	return nil
}

// Stop stops the scheduler and waits for a running check to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.cron.Remove(s.cronEntryID)
	s.cronEntryID = 0
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	log.Info().Msg("Update checker stopped")
}

// Last returns the most recent successful result
func (s *Scheduler) Last() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

// NextRun returns when the next scheduled check fires
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cronEntryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.cronEntryID).Next
}

func (s *Scheduler) run() {
	s.mu.RLock()
	parent := s.ctx
	s.mu.RUnlock()
	if parent == nil || parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	res, err := s.checker.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("Update check failed")
		}
		return
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	if res.Pending {
		log.Info().Str("current", s.checker.Current).Str("latest", res.Latest).Str("url", res.URL).Msg("Update available")
	} else {
		log.Debug().Str("version", s.checker.Current).Msg("Up to date")
	}

	if s.onResult != nil {
		s.onResult(res)
	}
}
