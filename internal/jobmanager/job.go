package jobmanager

import (
	"time"

	"github.com/storyworks/analyzerd/internal/artifact"
	"github.com/storyworks/analyzerd/internal/worker"
)

// Request describes one analysis job. Immutable once submitted.
type Request struct {
	// Subject is the repository to analyze, e.g. "acme/widgets".
	Subject string

	// Kind selects the analysis depth and thereby the deadline.
	Kind worker.Kind

	// Focus optionally narrows the analysis, e.g. "security".
	Focus string

	// ArtifactPath optionally overrides where the worker writes its
	// artifact. Empty means the manager derives a per-job path.
	ArtifactPath string
}

// cacheKey is the tuple identifying the request's cacheable identity.
func (r Request) cacheKey() artifact.Key {
	return artifact.Key{
		Subject: r.Subject,
		Kind:    string(r.Kind),
		Focus:   r.Focus,
	}
}

// Job is the transient aggregate for one submitted request. It is created on
// submission and destroyed once its terminal event has been published and
// its process handle, if any, released.
type Job struct {
	id       string
	req      Request
	deadline time.Time

	state AtomicJobState

	// events is the single serialization point between the producing job
	// goroutines and the consuming publisher. Bounded; producers block
	// rather than drop. Closed when the job is finished.
	events chan Event

	cancel func()
	done   chan struct{}
}

// ID returns the job's unique id.
func (j *Job) ID() string {
	return j.id
}

// Request returns the originating request.
func (j *Job) Request() Request {
	return j.req
}

// State returns the current state of the job.
func (j *Job) State() JobState {
	return j.state.Load()
}

// Deadline returns the absolute wall-clock deadline set at submission.
func (j *Job) Deadline() time.Time {
	return j.deadline
}

// Events returns the ordered event sequence. The channel is closed after
// the terminal result event, or without one if the job was cancelled.
func (j *Job) Events() <-chan Event {
	return j.events
}

// Cancel tears the job down: the worker process (if any) is killed, all
// readers are stopped, and no further events are published.
func (j *Job) Cancel() {
	j.cancel()
}

// Done returns a channel that is closed when the job has fully finished and
// all its resources have been released.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
