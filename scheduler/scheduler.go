// Package scheduler runs the server's periodic housekeeping (idle-match
// sweeps, stats logging) and one-shot delayed jobs (evicting finished
// matches after a grace period).
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. ctx is cancelled
// when the task is removed or the scheduler stops.
type TaskFn func(ctx context.Context)

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]context.CancelFunc
	timers  map[string]*time.Timer
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]context.CancelFunc),
		timers:  make(map[string]*time.Timer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) run(ctx context.Context, name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn(ctx)
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if stop, ok := s.tickers[name]; ok {
		stop()
	}
	ctx, stop := context.WithCancel(s.ctx)
	s.tickers[name] = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, name, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Debug("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay, replacing a pending delay of
// the same name.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if old, ok := s.timers[name]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[name] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, name)
		s.mu.Unlock()
		s.run(s.ctx, name, fn)
	})
	s.timers[name] = t
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.tickers[name]; ok {
		stop()
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.Stop()
		delete(s.timers, name)
	}
}

// Stop stops all tasks and waits for running tickers to return. Pending
// delays are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.cancel()
	for name, t := range s.timers {
		t.Stop()
		delete(s.timers, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// ListTickers returns the sorted names of all registered ticker tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Pending reports whether a delay task of that name is waiting to fire.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}
