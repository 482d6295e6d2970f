// Package sweeper runs the periodic tenders and new-shipments sweeps when
// the service acts as its own scheduler. Each run holds a lock named after
// the task so only one replica sweeps at a time.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/appctx"
	"github.com/Ramsey-B/clover/pkg/lock"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var (
	ErrAlreadyRunning = errors.New("sweeper already running")
	ErrUnknownTask    = errors.New("unknown sweep task")
)

const (
	DefaultLockTTL = 2 * time.Minute

	LockKeyPrefix = "sweep:"
)

// TaskFunc performs one sweep and returns fields describing what it did.
type TaskFunc func(ctx context.Context) (map[string]any, error)

type Task struct {
	Run      TaskFunc
	Name     string
	Interval time.Duration
}

type Config struct {
	// LockTTL bounds how long a crashed replica can block a task.
	LockTTL time.Duration
}

type Sweeper struct {
	locker lock.Locker
	logger ectologger.Logger
	tasks  map[string]Task
	order  []string
	config Config
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func New(locker lock.Locker, config Config, logger ectologger.Logger, tasks ...Task) *Sweeper {
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}
	s := &Sweeper{
		locker: locker,
		logger: logger,
		config: config,
		tasks:  make(map[string]Task, len(tasks)),
	}
	for _, task := range tasks {
		s.tasks[task.Name] = task
		s.order = append(s.order, task.Name)
	}
	return s
}

// Tasks returns the registered task names in registration order.
func (s *Sweeper) Tasks() []string {
	return append([]string(nil), s.order...)
}

// Start runs every task immediately and then on its interval until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})

	for _, name := range s.order {
		task := s.tasks[name]
		if task.Interval <= 0 {
			s.logger.WithContext(ctx).Warnf("Sweep task %s has no interval, not scheduling", name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, task)
	}

	s.logger.WithContext(ctx).Infof("Sweeper started with %d tasks", len(s.order))
	return nil
}

// Stop waits for in-flight runs to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.WithContext(ctx).Info("Sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Sweeper shutdown timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	s.run(ctx, task)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, task)
		}
	}
}

// RunOnce runs the named task a single time. A run skipped because another
// replica holds the task lock is not an error.
func (s *Sweeper) RunOnce(ctx context.Context, name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return s.run(ctx, task)
}

func (s *Sweeper) run(ctx context.Context, task Task) error {
	ctx = appctx.SetSource(ctx, appctx.SourceSweeper+":"+task.Name)
	ctx, span := tracing.StartSpan(ctx, "Sweeper.run")
	defer span.End()

	start := time.Now()
	var fields map[string]any
	err := lock.WithLock(ctx, s.locker, LockKeyPrefix+task.Name, s.config.LockTTL, func(ctx context.Context) error {
		var err error
		fields, err = task.Run(ctx)
		return err
	})
	elapsed := time.Since(start)
	log := s.logger.WithContext(ctx).WithField("task", task.Name)

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		metrics.RecordSweep(task.Name, "skipped", elapsed.Seconds())
		log.Debug("Sweep skipped, another instance holds the lock")
		return nil
	case err != nil:
		metrics.RecordSweep(task.Name, "error", elapsed.Seconds())
		tracing.RecordError(span, err)
		log.WithError(err).Error("Sweep failed")
		return err
	}

	metrics.RecordSweep(task.Name, "success", elapsed.Seconds())
	log.WithFields(fields).Infof("Sweep completed in %s", elapsed)
	return nil
}
