package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultRetention is how long a terminal job stays readable before it is
// evicted.
const DefaultRetention = 5 * time.Minute

var (
	// ErrAlreadyRunning is returned by Start when the owner has a
	// non-terminal job. The existing job is returned alongside it.
	ErrAlreadyRunning = eris.New("jobs: job already running")

	// ErrStaleRun is returned by Run.Report once the run no longer owns the
	// owner's slot, either because it was stopped or because it was replaced.
	ErrStaleRun = eris.New("jobs: run is no longer current")

	errNoChange = errors.New("jobs: no change")
)

// Runner executes one enrichment run. It must check run.Cancelled between
// units of work and publish counters through run.Report. The returned
// progress is the run's final tally.
type Runner interface {
	Run(ctx context.Context, run *Run) (Progress, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, run *Run) (Progress, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, run *Run) (Progress, error) {
	return f(ctx, run)
}

// Run is the handle a Runner receives. It is safe for concurrent use.
type Run struct {
	OwnerID string
	RunID   string
	Force   bool
	Token   *Token

	store Store
}

// Cancelled reports whether the run has been asked to stop.
func (r *Run) Cancelled() bool {
	return r.Token.Cancelled()
}

// Report publishes a progress snapshot. Counters are merged so they never
// decrease. Once the run has been stopped or superseded Report returns
// ErrStaleRun and the stored job is left untouched.
func (r *Run) Report(ctx context.Context, p Progress) error {
	_, err := r.store.Update(ctx, r.OwnerID, func(cur *Job) (*Job, error) {
		if cur == nil || cur.RunID != r.RunID || cur.Terminal() {
			return nil, ErrStaleRun
		}
		cur.Progress = p.atLeast(cur.Progress)
		return cur, nil
	})
	if errors.Is(err, ErrStaleRun) {
		return ErrStaleRun
	}
	return eris.Wrapf(err, "jobs: report progress for %s", r.OwnerID)
}

// StartOptions configure a new run.
type StartOptions struct {
	// Force re-enriches contacts that were already enriched.
	Force bool
}

// Registry admits, stops and reports on per-owner runs.
type Registry struct {
	store     Store
	sched     Scheduler
	runner    Runner
	retention time.Duration
	now       func() time.Time
	newRunID  func() string

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	tokens map[string]*Token // keyed by run id
	wg     sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetention sets how long terminal jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(r *Registry) { r.retention = d }
}

// WithScheduler replaces the eviction scheduler.
func WithScheduler(s Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(gen func() string) Option {
	return func(r *Registry) { r.newRunID = gen }
}

// NewRegistry creates a Registry backed by store that hands runs to runner.
func NewRegistry(store Store, runner Runner, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		store:      store,
		runner:     runner,
		retention:  DefaultRetention,
		now:        time.Now,
		newRunID:   uuid.NewString,
		baseCtx:    ctx,
		cancelBase: cancel,
		tokens:     make(map[string]*Token),
	}
	for _, o := range opts {
		o(r)
	}
	if r.sched == nil {
		r.sched = NewTimerScheduler()
	}
	return r
}

// Start admits a new run for ownerID and launches it in the background. If
// the owner already has a running job, that job is returned with
// ErrAlreadyRunning and nothing is launched.
func (r *Registry) Start(ctx context.Context, ownerID string, opts StartOptions) (*Job, error) {
	if ownerID == "" {
		return nil, eris.New("jobs: owner id is required")
	}

	var existing *Job
	runID := r.newRunID()
	job, err := r.store.Update(ctx, ownerID, func(cur *Job) (*Job, error) {
		if cur != nil && !cur.Terminal() {
			existing = cur
			return nil, ErrAlreadyRunning
		}
		return &Job{
			OwnerID:   ownerID,
			RunID:     runID,
			Status:    StatusRunning,
			Force:     opts.Force,
			StartedAt: r.now().UTC(),
		}, nil
	})
	if errors.Is(err, ErrAlreadyRunning) {
		return existing, ErrAlreadyRunning
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: start %s", ownerID)
	}

	r.sched.Cancel(ownerID)

	token := NewToken()
	r.mu.Lock()
	r.tokens[runID] = token
	r.mu.Unlock()

	run := &Run{OwnerID: ownerID, RunID: runID, Force: opts.Force, Token: token, store: r.store}
	r.wg.Add(1)
	go r.execute(run)

	zap.L().Info("jobs: run started",
		zap.String("owner_id", ownerID),
		zap.String("run_id", runID),
		zap.Bool("force", opts.Force),
	)
	return job, nil
}

// Stop cancels the owner's running job and marks it done immediately with
// its last reported progress. It returns stopped=false, along with any
// stored job, when there is nothing running.
func (r *Registry) Stop(ctx context.Context, ownerID string) (*Job, bool, error) {
	job, err := r.store.Update(ctx, ownerID, func(cur *Job) (*Job, error) {
		if cur == nil || cur.Terminal() {
			return nil, errNoChange
		}
		// The worker must observe cancellation no later than pollers observe
		// the terminal state.
		r.cancelToken(cur.RunID)
		finished := r.now().UTC()
		cur.Status = StatusDone
		cur.Stopped = true
		cur.FinishedAt = &finished
		return cur, nil
	})
	if errors.Is(err, errNoChange) {
		cur, getErr := r.store.Get(ctx, ownerID)
		if getErr != nil {
			return nil, false, eris.Wrapf(getErr, "jobs: stop %s", ownerID)
		}
		return cur, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "jobs: stop %s", ownerID)
	}

	r.scheduleEviction(ownerID, job.RunID)

	zap.L().Info("jobs: run stopped",
		zap.String("owner_id", ownerID),
		zap.String("run_id", job.RunID),
		zap.Int("processed", job.Progress.Processed()),
		zap.Int("total", job.Progress.Total),
	)
	return job, true, nil
}

func (r *Registry) cancelToken(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[runID]; ok {
		t.Cancel()
	}
}

// Progress returns the owner's job snapshot, or nil when none is stored.
func (r *Registry) Progress(ctx context.Context, ownerID string) (*Job, error) {
	job, err := r.store.Get(ctx, ownerID)
	return job, eris.Wrapf(err, "jobs: progress %s", ownerID)
}

// Wait blocks until every launched run has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Shutdown cancels every active run and waits for them to return. If ctx
// expires first, in-flight calls are cancelled too.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, t := range r.tokens {
		t.Cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancelBase()
		return nil
	case <-ctx.Done():
		r.cancelBase()
		<-done
		return eris.Wrap(ctx.Err(), "jobs: shutdown")
	}
}

func (r *Registry) execute(run *Run) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.tokens, run.RunID)
		r.mu.Unlock()
	}()

	final, err := r.invoke(run)
	r.finish(run, final, err)
}

func (r *Registry) invoke(run *Run) (p Progress, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.New(fmt.Sprintf("jobs: runner panic: %v", rec))
		}
	}()
	return r.runner.Run(r.baseCtx, run)
}

func (r *Registry) finish(run *Run, final Progress, runErr error) {
	log := zap.L().With(zap.String("owner_id", run.OwnerID), zap.String("run_id", run.RunID))
	ctx := context.WithoutCancel(r.baseCtx)

	job, err := r.store.Update(ctx, run.OwnerID, func(cur *Job) (*Job, error) {
		if cur == nil || cur.RunID != run.RunID || cur.Terminal() {
			return nil, errNoChange
		}
		finished := r.now().UTC()
		cur.FinishedAt = &finished
		cur.Progress = final.atLeast(cur.Progress)
		switch {
		case runErr != nil && errors.Is(runErr, ErrStaleRun),
			runErr == nil && run.Cancelled():
			cur.Status = StatusDone
			cur.Stopped = true
		case runErr != nil:
			cur.Status = StatusError
			cur.Progress.ErrorMessage = runErr.Error()
		default:
			cur.Status = StatusDone
		}
		return cur, nil
	})
	if errors.Is(err, errNoChange) {
		log.Debug("jobs: discarding result of superseded run")
		return
	}
	if err != nil {
		log.Error("jobs: finalize run", zap.Error(err))
		return
	}

	if job.Status == StatusError {
		log.Warn("jobs: run failed", zap.String("error", job.Progress.ErrorMessage))
	} else {
		log.Info("jobs: run finished",
			zap.Int("total", job.Progress.Total),
			zap.Int("enriched", job.Progress.Enriched),
			zap.Int("skipped", job.Progress.Skipped),
			zap.Int("errors", job.Progress.Errors),
		)
	}
	r.scheduleEviction(run.OwnerID, run.RunID)
}

func (r *Registry) scheduleEviction(ownerID, runID string) {
	r.sched.Schedule(ownerID, r.retention, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := r.store.Update(ctx, ownerID, func(cur *Job) (*Job, error) {
			if cur == nil || cur.RunID != runID || !cur.Terminal() {
				return nil, errNoChange
			}
			return nil, nil
		})
		if err != nil && !errors.Is(err, errNoChange) {
			zap.L().Warn("jobs: evict job", zap.String("owner_id", ownerID), zap.Error(err))
		}
	})
}
