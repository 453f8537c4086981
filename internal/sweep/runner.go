package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"coachbook/internal/pkg/locker"
)

// Runner schedules jobs on cron specs. Each run takes a leader lock named
// "sweep:<job>" so that only one instance executes a job at a time.
type Runner struct {
	jobs    []Job
	locker  locker.Locker
	lockTTL time.Duration
	log     *zap.Logger

	cron   *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

func NewRunner(lock locker.Locker, lockTTL time.Duration, log *zap.Logger, jobs ...Job) *Runner {
	if lock == nil {
		lock = locker.Noop{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{jobs: jobs, locker: lock, lockTTL: lockTTL, log: log}
}

func lockKey(name string) string {
	return "sweep:" + name
}

// Start registers every job with cron and starts it. Invalid specs are
// reported before anything is scheduled.
func (r *Runner) Start(ctx context.Context) error {
	r.runCtx, r.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{r.log})))
	for _, job := range r.jobs {
		job := job
		if _, err := c.AddFunc(job.Spec, func() { r.run(r.runCtx, job) }); err != nil {
			r.cancel()
			return fmt.Errorf("schedule %s (%q): %w", job.Name, job.Spec, err)
		}
		r.log.Info("sweep job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop cancels in-flight jobs and waits for them to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// RunAll executes every job once, in registration order.
func (r *Runner) RunAll(ctx context.Context) map[string]error {
	results := make(map[string]error, len(r.jobs))
	for _, job := range r.jobs {
		if ctx.Err() != nil {
			results[job.Name] = ctx.Err()
			continue
		}
		results[job.Name] = r.run(ctx, job)
	}
	return results
}

// RunJob executes the named job once.
func (r *Runner) RunJob(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name == name {
			return r.run(ctx, job)
		}
	}
	return fmt.Errorf("unknown sweep job %q", name)
}

func (r *Runner) run(ctx context.Context, job Job) error {
	key := lockKey(job.Name)
	acquired, token, err := r.locker.TryLock(ctx, key, r.lockTTL)
	if err != nil {
		r.log.Warn("sweep: leader lock attempt failed", zap.String("job", job.Name), zap.Error(err))
		return err
	}
	if !acquired {
		r.log.Info("sweep: lock held by another instance", zap.String("job", job.Name))
		return nil
	}
	defer func() {
		if err := r.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			r.log.Warn("sweep: unlock failed", zap.String("job", job.Name), zap.Error(err))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.log.Error("sweep job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	r.log.Info("sweep job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	return nil
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
