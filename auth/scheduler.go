package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MinRefreshInterval is the smallest period the interval timer runs at.
const MinRefreshInterval = time.Second

const (
	timerOneShot  = "oneshot"
	timerInterval = "interval"
)

// RefreshFunc performs one refresh. Its error is logged by the scheduler and otherwise ignored.
type RefreshFunc func(ctx context.Context) error

// Scheduler owns the two refresh timers: a one-shot wake that promotes itself to the
// interval timer on success, and the interval timer itself. At most one of each kind runs;
// starting one cancels its predecessor.
type Scheduler struct {
	refresh  RefreshFunc
	period   func() time.Duration
	logger   zerolog.Logger
	metrics  *Metrics
	lock     sync.Mutex
	oneShot  *timerHandle
	interval *timerHandle
}

type timerHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newTimerHandle() *timerHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &timerHandle{ctx: ctx, cancel: cancel}
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithSchedulerMetrics(metrics *Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// NewScheduler builds a scheduler calling refresh on every fire. period is evaluated each
// time the interval timer starts, so it sees the lifetime of the freshest access token.
func NewScheduler(refresh RefreshFunc, period func() time.Duration, options ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		refresh: refresh,
		period:  period,
		logger:  log.With().Str("component", "refresh-scheduler").Logger(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// StartOneShot fires a single refresh after delay (immediately when delay <= 0) and, if it
// succeeds and the timer was not stopped meanwhile, starts the interval timer.
// Any running timer of either kind is cancelled first.
func (s *Scheduler) StartOneShot(delay time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopHandle(&s.oneShot)
	s.stopHandle(&s.interval)
	h := newTimerHandle()
	s.oneShot = h

	s.logger.Debug().Dur("delay", delay).Msg("One-shot refresh scheduled")
	go s.runOneShot(h, delay)
}

// StartInterval refreshes every period, clamped to MinRefreshInterval. Failed refreshes
// do not stop the timer. A pending one-shot is cancelled.
func (s *Scheduler) StartInterval(period time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.stopHandle(&s.oneShot)
	s.startIntervalLocked(period)
}

// Stop cancels both timers. A refresh already in flight completes but schedules nothing.
func (s *Scheduler) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.oneShot == nil && s.interval == nil {
		return
	}
	s.stopHandle(&s.oneShot)
	s.stopHandle(&s.interval)
	s.logger.Debug().Msg("Refresh timers stopped")
}

// Active reports which timers are currently scheduled.
func (s *Scheduler) Active() (oneShot bool, interval bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.oneShot != nil, s.interval != nil
}

func (s *Scheduler) startIntervalLocked(period time.Duration) {
	s.stopHandle(&s.interval)
	if period < MinRefreshInterval {
		period = MinRefreshInterval
	}
	h := newTimerHandle()
	s.interval = h

	s.logger.Debug().Dur("period", period).Msg("Interval refresh scheduled")
	go s.runInterval(h, period)
}

func (s *Scheduler) stopHandle(slot **timerHandle) {
	if *slot == nil {
		return
	}
	(*slot).cancel()
	*slot = nil
}

func (s *Scheduler) runOneShot(h *timerHandle, delay time.Duration) {
	timer := time.NewTimer(max(delay, 0))
	defer timer.Stop()

	select {
	case <-h.ctx.Done():
		return
	case <-timer.C:
	}
	if h.ctx.Err() != nil {
		return
	}

	s.metrics.timerFired(timerOneShot)
	err := s.refresh(context.WithoutCancel(h.ctx))

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.oneShot != h {
		return
	}
	s.oneShot = nil
	if err != nil {
		s.logger.Warn().Err(err).Msg("One-shot refresh failed")
		return
	}
	s.startIntervalLocked(s.period())
}

func (s *Scheduler) runInterval(h *timerHandle, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
		}
		if h.ctx.Err() != nil {
			return
		}

		s.metrics.timerFired(timerInterval)
		if err := s.refresh(context.WithoutCancel(h.ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("Interval refresh failed")
		}
	}
}
