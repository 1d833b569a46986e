package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/codesentry/internal/core"
)

const (
	maxAttempts = 5
	baseBackoff = 2 * time.Second
	maxBackoff  = 5 * time.Minute

	queueCapacity = 256
)

// Scheduler implements core.JobDispatcher: a fixed-size worker pool draining
// a task queue, holding a per-repository mutex for the full duration of a
// task so at most one task per repository_id runs at a time, and retrying
// transient failures with exponential backoff, per spec.md §4.J. The
// worker-pool/channel/non-blocking-dispatch shape is grounded on the
// teacher's internal/jobs/dispatcher.go; the per-repo exclusivity and
// retry/backoff/cancellation are new on top of it.
type Scheduler struct {
	runner     core.Job
	queue      chan core.Task
	maxWorkers int
	wg         sync.WaitGroup
	logger     *slog.Logger

	repoLocks sync.Map // int64 -> *sync.Mutex
	cancels   sync.Map // int64 -> context.CancelFunc
	cancelled sync.Map // int64 -> struct{}
}

// NewScheduler starts a Scheduler with maxWorkers goroutines running runner.
// maxWorkers <= 0 defaults to 1.
func NewScheduler(runner core.Job, maxWorkers int, logger *slog.Logger) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		runner:     runner,
		maxWorkers: maxWorkers,
		queue:      make(chan core.Task, queueCapacity),
		logger:     logger,
	}
	s.startWorkers()
	return s
}

var _ core.JobDispatcher = (*Scheduler)(nil)

func (s *Scheduler) startWorkers() {
	for i := 0; i < s.maxWorkers; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.logger.Info("starting pipeline worker", "worker_id", workerID)
			for task := range s.queue {
				s.runTask(task)
			}
			s.logger.Info("pipeline worker stopped", "worker_id", workerID)
		}(i)
	}
}

// Dispatch queues task for asynchronous processing, returning an error if
// the queue is full rather than blocking the caller.
func (s *Scheduler) Dispatch(ctx context.Context, task core.Task) error {
	s.cancelled.Delete(task.RepoID)
	s.logger.InfoContext(ctx, "queuing task", "repo_id", task.RepoID, "kind", task.Kind)
	select {
	case s.queue <- task:
		return nil
	default:
		return fmt.Errorf("jobs: queue is full, cannot accept task for repo %d", task.RepoID)
	}
}

// Cancel marks repoID so any of its queued-but-not-yet-run tasks are skipped,
// and cancels the context of an in-flight task for that repo, if any.
func (s *Scheduler) Cancel(ctx context.Context, repoID int64) error {
	s.cancelled.Store(repoID, struct{}{})
	if v, ok := s.cancels.Load(repoID); ok {
		v.(context.CancelFunc)()
	}
	s.logger.InfoContext(ctx, "cancel requested", "repo_id", repoID)
	return nil
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler, waiting for in-flight tasks")
	close(s.queue)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) lockFor(repoID int64) *sync.Mutex {
	v, _ := s.repoLocks.LoadOrStore(repoID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// runTask holds task.RepoID's lock for the task's entire retry loop, which
// spans the pipeline's ingest/parse/persist stages and its internal
// fan-out goroutines — the fan-out stages run concurrently with each other
// while the repo as a whole still has at most one task in flight, resolving
// spec.md §4.J's mutual-exclusion and parallel-fan-out requirements at once.
func (s *Scheduler) runTask(task core.Task) {
	if _, cancelled := s.cancelled.Load(task.RepoID); cancelled {
		s.logger.Info("skipping cancelled task", "repo_id", task.RepoID, "kind", task.Kind)
		return
	}

	mu := s.lockFor(task.RepoID)
	mu.Lock()
	defer mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancels.Store(task.RepoID, cancel)
	defer func() {
		s.cancels.Delete(task.RepoID)
		cancel()
	}()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if _, cancelled := s.cancelled.Load(task.RepoID); cancelled {
			s.logger.Info("task cancelled mid-retry", "repo_id", task.RepoID, "kind", task.Kind, "attempt", attempt)
			return
		}

		attemptTask := task
		attemptTask.Attempt = attempt
		err := s.runner.Run(ctx, attemptTask)
		if err == nil {
			return
		}
		if !core.IsTransient(err) || attempt == maxAttempts {
			s.logger.Error("task failed permanently", "repo_id", task.RepoID, "kind", task.Kind, "attempt", attempt, "error", err)
			return
		}

		delay := backoffDelay(attempt)
		s.logger.Warn("task failed, retrying", "repo_id", task.RepoID, "kind", task.Kind, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// backoffDelay doubles from baseBackoff each attempt, capped at maxBackoff.
func backoffDelay(attempt int) time.Duration {
	d := baseBackoff << uint(attempt-1)
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}
