package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sevigo/codesentry/internal/core"
)

type fakeJob struct {
	mu      sync.Mutex
	calls   []core.Task
	runFunc func(ctx context.Context, task core.Task) error
}

func (f *fakeJob) Run(ctx context.Context, task core.Task) error {
	f.mu.Lock()
	f.calls = append(f.calls, task)
	f.mu.Unlock()
	if f.runFunc != nil {
		return f.runFunc(ctx, task)
	}
	return nil
}

func (f *fakeJob) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitForCondition(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition was not met within timeout")
}

func TestScheduler_DispatchRunsTask(t *testing.T) {
	job := &fakeJob{}
	sched := NewScheduler(job, 2, nil)
	defer sched.Stop()

	if err := sched.Dispatch(context.Background(), core.Task{RepoID: 1, Kind: core.TaskIngest}); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}

	waitForCondition(t, time.Second, func() bool { return job.callCount() == 1 })
}

func TestScheduler_PermanentFailureDoesNotRetry(t *testing.T) {
	job := &fakeJob{runFunc: func(context.Context, core.Task) error {
		return core.NewKindError(core.ErrKindValidation, errors.New("bad input"))
	}}
	sched := NewScheduler(job, 1, nil)
	defer sched.Stop()

	_ = sched.Dispatch(context.Background(), core.Task{RepoID: 1, Kind: core.TaskIngest})

	waitForCondition(t, time.Second, func() bool { return job.callCount() == 1 })
	time.Sleep(50 * time.Millisecond)
	if job.callCount() != 1 {
		t.Errorf("expected exactly 1 attempt for a non-transient error, got %d", job.callCount())
	}
}

func TestScheduler_CancelSkipsQueuedTask(t *testing.T) {
	// Occupy the single worker with a long-running task for a different repo
	// so the cancelled task is still sitting in the queue when Cancel fires.
	block := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	job := &fakeJob{runFunc: func(_ context.Context, task core.Task) error {
		if task.RepoID == 99 {
			startedOnce.Do(func() { close(started) })
			<-block
		}
		return nil
	}}
	sched := NewScheduler(job, 1, nil)
	defer sched.Stop()

	_ = sched.Dispatch(context.Background(), core.Task{RepoID: 99, Kind: core.TaskIngest})
	<-started

	_ = sched.Dispatch(context.Background(), core.Task{RepoID: 2, Kind: core.TaskIngest})
	if err := sched.Cancel(context.Background(), 2); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	close(block)

	time.Sleep(50 * time.Millisecond)
	job.mu.Lock()
	defer job.mu.Unlock()
	for _, task := range job.calls {
		if task.RepoID == 2 {
			t.Error("expected the cancelled task never to run, but it did")
		}
	}
}

func TestScheduler_MutualExclusionPerRepo(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	job := &fakeJob{runFunc: func(context.Context, core.Task) error {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return nil
	}}
	sched := NewScheduler(job, 4, nil)
	defer sched.Stop()

	for i := 0; i < 5; i++ {
		_ = sched.Dispatch(context.Background(), core.Task{RepoID: 7, Kind: core.TaskIngest, Attempt: i})
	}

	waitForCondition(t, 2*time.Second, func() bool { return job.callCount() == 5 })
	if atomic.LoadInt32(&maxConcurrent) != 1 {
		t.Errorf("expected at most 1 concurrent task for the same repo, saw %d", maxConcurrent)
	}
}

func TestBackoffDelay_CapsAtMax(t *testing.T) {
	if got := backoffDelay(1); got != baseBackoff {
		t.Errorf("expected first backoff to equal baseBackoff, got %v", got)
	}
	if got := backoffDelay(20); got != maxBackoff {
		t.Errorf("expected large attempt counts to cap at maxBackoff, got %v", got)
	}
}
