// Package jobs runs training and verification strategies on a single
// background worker. Only one job may run at a time; strategies only see a
// snapshot of the network and never touch the editing session.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/never2/internal/metrics"
	"github.com/gyaneshwarpardhi/never2/internal/network"
)

var (
	// ErrBusy is returned when a job is requested while another one runs.
	ErrBusy = errors.New("a job is already running")
	// ErrUnknownStrategy is returned for strategy names nothing is registered under.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Kind tells verification jobs from training jobs.
type Kind string

const (
	KindVerify Kind = "verify"
	KindTrain  Kind = "train"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job describes a submitted job. Runner hands out copies.
type Job struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Strategy string    `json:"strategy"`
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	Verdict  *Verdict  `json:"verdict,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`

	// Trained is the network a successful training job produced.
	Trained *network.Sequential `json:"-"`
}

type task struct {
	job *Job
	req *Request
}

// Config configures a Runner.
type Config struct {
	// Timeout bounds every job; zero means no limit.
	Timeout time.Duration
	// OnDone is called from the worker goroutine when a job finishes.
	OnDone func(Job)
	Logger *slog.Logger
}

// Runner owns the single background worker.
type Runner struct {
	pool      *pool[*task]
	conf      Config
	log       *slog.Logger
	verifiers map[string]Verifier
	trainers  map[string]Trainer

	mu      sync.Mutex
	current *Job
	busy    bool
}

// NewRunner starts the worker. It stops when ctx is cancelled or Close is called.
func NewRunner(ctx context.Context, conf Config) *Runner {
	r := &Runner{
		conf:      conf,
		log:       conf.Logger,
		verifiers: make(map[string]Verifier),
		trainers:  make(map[string]Trainer),
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	r.pool = newPool[*task](ctx, 1, 1, r.run)
	return r
}

// RegisterVerifier adds a verification strategy. Panics on a duplicate name
// to surface misconfiguration early.
func (r *Runner) RegisterVerifier(name string, v Verifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.verifiers[name]; exists {
		panic(fmt.Sprintf("jobs: duplicate verifier %q", name))
	}
	r.verifiers[name] = v
}

// RegisterTrainer adds a training strategy. Panics on a duplicate name.
func (r *Runner) RegisterTrainer(name string, t Trainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.trainers[name]; exists {
		panic(fmt.Sprintf("jobs: duplicate trainer %q", name))
	}
	r.trainers[name] = t
}

// Strategies returns the registered strategy names per kind, sorted.
func (r *Runner) Strategies() map[Kind][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[Kind][]string{KindVerify: {}, KindTrain: {}}
	for name := range r.verifiers {
		out[KindVerify] = append(out[KindVerify], name)
	}
	for name := range r.trainers {
		out[KindTrain] = append(out[KindTrain], name)
	}
	sort.Strings(out[KindVerify])
	sort.Strings(out[KindTrain])
	return out
}

// Submit starts a job of the given kind. It never blocks: ErrBusy is
// returned while another job is running.
func (r *Runner) Submit(kind Kind, req *Request) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		metrics.JobsBusy.Inc()
		return Job{}, ErrBusy
	}
	switch kind {
	case KindVerify:
		if _, ok := r.verifiers[req.Strategy]; !ok {
			return Job{}, fmt.Errorf("%w: verifier %q", ErrUnknownStrategy, req.Strategy)
		}
	case KindTrain:
		if _, ok := r.trainers[req.Strategy]; !ok {
			return Job{}, fmt.Errorf("%w: trainer %q", ErrUnknownStrategy, req.Strategy)
		}
	default:
		return Job{}, fmt.Errorf("unknown job kind %q", kind)
	}

	job := &Job{
		ID:       uuid.NewString(),
		Kind:     kind,
		Strategy: req.Strategy,
		Status:   StatusRunning,
		Started:  time.Now(),
	}
	if !r.pool.Submit(&task{job: job, req: req}) {
		metrics.JobsBusy.Inc()
		return Job{}, ErrBusy
	}
	r.busy = true
	r.current = job
	metrics.JobsStarted.WithLabelValues(string(kind)).Inc()
	r.log.Info("job started", "id", job.ID, "kind", kind, "strategy", req.Strategy)
	return *job, nil
}

// Current returns the running job, or the last finished one.
func (r *Runner) Current() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Job{}, false
	}
	return *r.current, true
}

// Busy reports whether a job is running.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}

// Close waits for the running job, if any, and stops the worker.
func (r *Runner) Close() {
	r.pool.Drain()
}

func (r *Runner) run(ctx context.Context, t *task) {
	if r.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.conf.Timeout)
		defer cancel()
	}
	log := r.log.With("job", t.job.ID, "strategy", t.req.Strategy)

	var (
		verdict *Verdict
		trained *network.Sequential
		err     error
	)
	r.mu.Lock()
	v, tr := r.verifiers[t.req.Strategy], r.trainers[t.req.Strategy]
	r.mu.Unlock()
	switch t.job.Kind {
	case KindVerify:
		verdict, err = v.Verify(ctx, t.req, log)
	case KindTrain:
		trained, err = tr.Train(ctx, t.req, log)
	}

	r.mu.Lock()
	job := t.job
	job.Finished = time.Now()
	job.Verdict, job.Trained = verdict, trained
	job.Status = StatusSucceeded
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	}
	done := *job
	r.busy = false
	r.mu.Unlock()

	metrics.JobsFinished.WithLabelValues(string(job.Kind), string(done.Status)).Inc()
	if err != nil {
		log.Warn("job failed", "error", err, "elapsed", done.Finished.Sub(done.Started))
	} else {
		log.Info("job finished", "elapsed", done.Finished.Sub(done.Started))
	}
	if r.conf.OnDone != nil {
		r.conf.OnDone(done)
	}
}
