// Package sweep runs periodic maintenance jobs in the background.
package sweep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic task. Run returns how many items it processed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Runner drives a set of jobs, each on its own ticker, until Stop.
type Runner struct {
	jobs   []Job
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRunner creates a Runner. Jobs with a non-positive interval or nil Run are
// skipped.
func NewRunner(logger *zap.Logger, jobs ...Job) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{logger: logger}
	for _, j := range jobs {
		if j.Interval > 0 && j.Run != nil {
			r.jobs = append(r.jobs, j)
		}
	}
	return r
}

// Jobs returns the names of the scheduled jobs.
func (r *Runner) Jobs() []string {
	out := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		out[i] = j.Name
	}
	return out
}

// Start launches the job loops. Calling it twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
}

// Stop cancels all loops and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// RunOnce runs every job once, synchronously.
func (r *Runner) RunOnce(ctx context.Context) {
	for _, j := range r.jobs {
		r.run(ctx, j)
	}
}

func (r *Runner) loop(ctx context.Context, j Job) {
	defer r.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.run(ctx, j)
		}
	}
}

func (r *Runner) run(ctx context.Context, j Job) {
	n, err := j.Run(ctx)
	if err != nil {
		r.logger.Warn("sweep failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Debug("sweep done", zap.String("job", j.Name), zap.Int("items", n))
	}
}
