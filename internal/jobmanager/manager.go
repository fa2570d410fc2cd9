package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storyworks/analyzerd/internal/artifact"
	"github.com/storyworks/analyzerd/internal/jobmanager/linemux"
	"github.com/storyworks/analyzerd/internal/runner"
	"github.com/storyworks/analyzerd/internal/worker"
)

const (
	// defaultEventBuffer bounds a job's event queue. Worker output is
	// low-rate textual progress, so producers block rather than drop when a
	// slow client can't be drained fast enough.
	defaultEventBuffer = 64

	// defaultKillGrace is the window between the graceful termination signal
	// and the forceful kill when a deadline is exceeded.
	defaultKillGrace = 10 * time.Second
)

// Config carries the manager's operational settings.
type Config struct {
	// WorkerBin is the analyzer worker executable.
	WorkerBin string

	// WorkDir is the working directory for worker processes.
	WorkDir string

	// ArtifactDir is where per-job artifact files are written.
	ArtifactDir string

	// Env is the environment passed to worker processes, already filtered
	// to the credential allowlist.
	Env []string

	// KillGrace overrides the termination grace window. Zero means default.
	KillGrace time.Duration

	// EventBuffer overrides the event queue bound. Zero means default.
	EventBuffer int

	// Deadlines overrides the per-kind execution deadlines. Kinds not
	// present fall back to the worker package defaults.
	Deadlines map[worker.Kind]time.Duration
}

func (c *Config) killGrace() time.Duration {
	if c.KillGrace > 0 {
		return c.KillGrace
	}

	return defaultKillGrace
}

func (c *Config) eventBuffer() int {
	if c.EventBuffer > 0 {
		return c.EventBuffer
	}

	return defaultEventBuffer
}

func (c *Config) deadlineFor(kind worker.Kind) time.Duration {
	if d, ok := c.Deadlines[kind]; ok {
		return d
	}

	return kind.Deadline()
}

// Manager creates and manages Jobs. Each job runs on its own goroutine
// graph; jobs share no mutable state with each other.
type Manager struct {
	runner runner.CommandRunner
	cache  *artifact.Cache
	logger *slog.Logger
	cfg    Config

	jobs         map[string]*Job
	shuttingDown bool

	mu sync.Mutex
}

// NewManager creates a Manager ready to run jobs.
func NewManager(
	cmdRunner runner.CommandRunner,
	cache *artifact.Cache,
	logger *slog.Logger,
	cfg Config,
) *Manager {
	return &Manager{
		runner: cmdRunner,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
		jobs:   make(map[string]*Job),
	}
}

// Submit accepts a request and starts its job. The returned Job's event
// channel carries the ordered event sequence; it is closed after the
// terminal result, or without one if ctx is cancelled first. Cancelling ctx
// (client disconnect) kills the worker and tears the job down silently.
func (m *Manager) Submit(ctx context.Context, req Request) (*Job, error) {
	if req.Subject == "" {
		return nil, ErrEmptySubject
	}

	if _, err := worker.ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)

	job := &Job{
		id:       uuid.NewString(),
		req:      req,
		deadline: time.Now().Add(m.cfg.deadlineFor(req.Kind)),
		events:   make(chan Event, m.cfg.eventBuffer()),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	job.state.Store(JobStatePending)

	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	m.jobs[job.id] = job
	m.mu.Unlock()

	go m.run(ctx, job)

	return job, nil
}

// Shutdown cancels all in-flight jobs and waits for them to release their
// resources. Further submissions are rejected.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.shuttingDown = true
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.Unlock()

	for _, job := range jobs {
		job.Cancel()
	}

	for _, job := range jobs {
		<-job.Done()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
}

// run drives one job to a terminal state. It is the only goroutine that
// writes the job's terminal events and always runs to completion, releasing
// the process handle on every exit path.
func (m *Manager) run(ctx context.Context, job *Job) {
	defer func() {
		close(job.events)
		m.remove(job.id)
		close(job.done)
		job.cancel()
	}()

	// emit delivers an event, blocking until the publisher drains it or the
	// job is cancelled. Returns false once there is no longer a recipient.
	emit := func(ev Event) bool {
		select {
		case job.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if m.serveFromCache(ctx, job, emit) {
		return
	}

	m.runWorker(ctx, job, emit)
}

// serveFromCache checks whether a precomputed artifact satisfies the
// request and, on a hit, synthesizes the event sequence a real run would
// have produced. Reports whether the job was handled.
func (m *Manager) serveFromCache(
	ctx context.Context,
	job *Job,
	emit func(Event) bool,
) bool {
	payload, path, err := m.cache.Lookup(job.req.cacheKey())
	if err != nil {
		if !errors.Is(err, artifact.ErrCacheMiss) {
			m.logger.WarnContext(ctx, "cache lookup", "id", job.id, "err", err)
		}

		return false
	}

	job.state.Store(JobStateSynthesizing)

	m.logger.InfoContext(
		ctx,
		"serving cached analysis",
		"id", job.id,
		"subject", job.req.Subject,
		"kind", job.req.Kind,
	)

	// The synthesized sequence must be indistinguishable in shape from a
	// live run: deterministic stage output, then the terminal result.
	stages := []string{
		fmt.Sprintf("Fetching repository metadata for %s", job.req.Subject),
		fmt.Sprintf("Running %s analysis", job.req.Kind),
		"Loaded precomputed analysis artifact",
	}

	for _, stage := range stages {
		if !emit(outputEvent(stage)) {
			job.state.Store(JobStateCancelled)
			return true
		}
	}

	if !emit(resultEvent(artifact.Result{
		Success:    true,
		Payload:    payload,
		OutputFile: path,
	})) {
		job.state.Store(JobStateCancelled)
		return true
	}

	job.state.Store(JobStateCompleted)

	return true
}

// runWorker executes the analyzer worker process for the job: spawn, stream
// output, guard the deadline, resolve the terminal result.
func (m *Manager) runWorker(
	ctx context.Context,
	job *Job,
	emit func(Event) bool,
) {
	job.state.Store(JobStateSpawning)

	artifactPath := job.req.ArtifactPath
	if artifactPath == "" {
		artifactPath = filepath.Join(m.cfg.ArtifactDir, job.id+".json")
	}

	spec := runner.Spec{
		Argv: worker.Argv(
			m.cfg.WorkerBin,
			job.req.Subject,
			job.req.Kind,
			job.req.Focus,
			artifactPath,
		),
		Dir: m.cfg.WorkDir,
		Env: m.cfg.Env,
	}

	handle, err := m.runner.Start(ctx, spec)
	if err != nil {
		job.state.Store(JobStateFailed)

		m.logger.ErrorContext(ctx, "spawn worker", "id", job.id, "err", err)

		emit(resultEvent(artifact.Result{
			Success:    false,
			OutputFile: artifactPath,
			Error:      fmt.Sprintf("failed to start analysis: %v", err),
		}))

		return
	}

	job.state.Store(JobStateRunning)

	m.logger.InfoContext(
		ctx,
		"worker started",
		"id", job.id,
		"pid", handle.PID(),
		"deadline", job.deadline,
	)

	guard := StartTimeoutGuard(
		ctx,
		job.deadline,
		m.cfg.killGrace(),
		handle,
		func(msg string) {
			emit(outputEvent(msg))
		},
	)

	mux := linemux.New(ctx, handle.Stdout(), handle.Stderr(), m.cfg.eventBuffer())

	var captured artifact.Capture

	for line := range mux.Lines() {
		captured.Lines = append(captured.Lines, line.Text)

		ev := outputEvent(line.Text)
		if line.Stream == linemux.Stderr {
			captured.Errors = append(captured.Errors, line.Text)
			ev = errorEvent(line.Text)
		}

		if !emit(ev) {
			// Client gone; keep draining so the pipes reach EOF and the
			// process can be reaped.
			continue
		}
	}

	if streamErr := mux.Err(); streamErr != nil && ctx.Err() == nil {
		// Stream errors are absorbed: the exit code is the authoritative
		// success signal.
		m.logger.WarnContext(ctx, "worker output stream", "id", job.id, "err", streamErr)
	}

	exitCode, waitErr := handle.Wait()
	if waitErr != nil {
		m.logger.WarnContext(ctx, "wait for worker", "id", job.id, "err", waitErr)
	}

	// Blocks until the guard goroutine finishes, so a fired guard's
	// announcement is enqueued before the terminal result.
	guard.Disarm()

	if ctx.Err() != nil {
		job.state.Store(JobStateCancelled)

		m.logger.InfoContext(ctx, "job cancelled", "id", job.id)

		return
	}

	result := artifact.Resolve(exitCode, artifactPath, captured)

	if guard.Fired() && !result.Success {
		result.TimedOut = true
		if result.Error == "" {
			result.Error = "analysis timed out"
		}
	}

	switch {
	case result.TimedOut:
		job.state.Store(JobStateTimedOut)
	case result.Success:
		job.state.Store(JobStateCompleted)
	default:
		job.state.Store(JobStateFailed)
	}

	m.logger.InfoContext(
		ctx,
		"job finished",
		"id", job.id,
		"state", job.State(),
		"exit_code", exitCode,
	)

	emit(resultEvent(result))
}
