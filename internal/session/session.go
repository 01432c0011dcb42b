// Package session runs one editing session: a scene, the project behind it
// and the background job runner. Every mutation and every job completion is
// executed on a single loop goroutine, so the scene is never touched
// concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/never2/internal/catalog"
	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/metrics"
	"github.com/gyaneshwarpardhi/never2/internal/project"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
)

var (
	// ErrStopped is returned once the session loop has exited.
	ErrStopped = errors.New("session stopped")
	// ErrTimeout is returned when a command does not complete in time.
	ErrTimeout = errors.New("command timed out")
)

// Config configures a Session.
type Config struct {
	Scene          scene.Config
	CommandTimeout time.Duration
	JobTimeout     time.Duration
	QueueDepth     int
	Logger         *slog.Logger
}

const (
	cmdPending int32 = iota
	cmdRunning
	cmdAbandoned
)

type command struct {
	name   string
	fn     func() error
	result chan error
	// state is nil for posted commands, which are never abandoned.
	state *atomic.Int32
}

// start claims c for the loop. It fails when the caller gave up first.
func (c command) start() bool {
	return c.state == nil || c.state.CompareAndSwap(cmdPending, cmdRunning)
}

// abandon withdraws c. It fails once the loop has started it.
func (c command) abandon() bool {
	return c.state.CompareAndSwap(cmdPending, cmdAbandoned)
}

// Session serialises access to a scene and its project.
type Session struct {
	scene   *scene.Scene
	project *project.Project
	runner  *jobs.Runner
	catalog *catalog.Catalog
	conf    Config
	log     *slog.Logger

	cmds   chan command
	done   chan struct{}
	events broker
}

// New creates a session and starts its loop. The loop and the job worker
// stop when ctx is cancelled.
func New(ctx context.Context, cat *catalog.Catalog, formats *project.Registry, conf Config) *Session {
	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}
	if conf.QueueDepth <= 0 {
		conf.QueueDepth = 64
	}
	s := &Session{
		catalog: cat,
		conf:    conf,
		log:     conf.Logger,
		cmds:    make(chan command, conf.QueueDepth),
		done:    make(chan struct{}),
	}
	s.project = project.New(conf.Scene.InputID, conf.Scene.InputDim, formats)
	s.project.SetLogger(s.log)
	s.scene = scene.New(s.project, cat, conf.Scene)
	s.scene.SetLogger(s.log)
	s.runner = jobs.NewRunner(ctx, jobs.Config{
		Timeout: conf.JobTimeout,
		OnDone:  s.jobDone,
		Logger:  s.log,
	})
	go s.loop(ctx)
	return s
}

// Runner exposes the job runner so strategies can be registered at startup.
func (s *Session) Runner() *jobs.Runner { return s.runner }

// Catalog returns the block catalog. It is safe to use from any goroutine.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case c := <-s.cmds:
			if !c.start() {
				s.log.Debug("abandoned command skipped", "command", c.name)
				continue
			}
			start := time.Now()
			err := c.fn()
			metrics.CommandDuration.WithLabelValues(c.name).Observe(float64(time.Since(start).Microseconds()) / 1000)
			if c.result != nil {
				c.result <- err
			}
		case <-ctx.Done():
			return
		}
	}
}

// do runs fn on the loop and waits for it. The command timeout and ctx
// only apply until the loop starts fn: a command that times out while
// queued never runs, and one that has started is always waited for.
func (s *Session) do(ctx context.Context, name string, fn func() error) error {
	c := command{name: name, fn: fn, result: make(chan error, 1), state: new(atomic.Int32)}
	var timeout <-chan time.Time
	if s.conf.CommandTimeout > 0 {
		t := time.NewTimer(s.conf.CommandTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.cmds <- c:
	case <-s.done:
		metrics.CommandsRejected.Inc()
		return ErrStopped
	case <-timeout:
		metrics.CommandsRejected.Inc()
		return fmt.Errorf("%s: %w", name, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.result:
		return err
	case <-s.done:
		return ErrStopped
	case <-timeout:
		if c.abandon() {
			metrics.CommandsRejected.Inc()
			return fmt.Errorf("%s: %w", name, ErrTimeout)
		}
	case <-ctx.Done():
		if c.abandon() {
			return ctx.Err()
		}
	}

	select {
	case err := <-c.result:
		return err
	case <-s.done:
		return ErrStopped
	}
}

// post queues fn on the loop without waiting for it.
func (s *Session) post(name string, fn func() error) {
	select {
	case s.cmds <- command{name: name, fn: fn}:
	case <-s.done:
	}
}

// Close stops the job worker, waiting for a running job.
func (s *Session) Close() {
	s.runner.Close()
}

// Done is closed when the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func confirmer(yes bool) scene.Confirmer {
	if yes {
		return scene.AlwaysConfirm
	}
	return scene.NeverConfirm
}
