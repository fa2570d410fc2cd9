package jobmanager

import "sync/atomic"

type JobState int

const (
	// JobStateUnknown indicates the state of the job is unknown. It's used as
	// the zero value for functions that return a (possibly absent) JobState.
	JobStateUnknown JobState = iota

	// JobStatePending indicates the job has been accepted but no decision has
	// been made between a cached artifact and a real run.
	JobStatePending

	// JobStateSynthesizing indicates a cached artifact satisfied the request
	// and the event sequence is being synthesized without a worker process.
	JobStateSynthesizing

	// JobStateSpawning indicates the worker process is being started.
	JobStateSpawning

	// JobStateRunning indicates the worker process is running and its output
	// is being streamed.
	JobStateRunning

	// JobStateCompleted indicates the job produced its terminal result.
	JobStateCompleted

	// JobStateTimedOut indicates the deadline elapsed and the worker was
	// killed; the terminal result is failure-shaped and timeout-classified.
	JobStateTimedOut

	// JobStateFailed indicates the worker failed to start or exited non-zero
	// without a timeout classification.
	JobStateFailed

	// JobStateCancelled indicates the client disconnected; the job was torn
	// down silently with no terminal result.
	JobStateCancelled
)

// NOTE: This slice needs to be kept in sync with any changes to the JobState
// values. Ideally, we'd only ever be 'adding' more states to maintain a
// consistent API.
var jobStates = []string{
	"Unknown",
	"Pending",
	"Synthesizing",
	"Spawning",
	"Running",
	"Completed",
	"TimedOut",
	"Failed",
	"Cancelled",
}

// String implements the Stringer interface for JobState and returns a string
// representation of the JobState by using the int value to index into a slice.
func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(jobStates) {
		return jobStates[0]
	}

	return jobStates[s]
}

// Terminal reports whether the state is an end state of the job machine.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateTimedOut, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// AtomicJobState is a wrapper around an atomic.Int32 to provide atomic
// operations on a JobState.
type AtomicJobState struct {
	v atomic.Int32
}

// Load atomically loads the JobState value.
func (a *AtomicJobState) Load() JobState {
	return JobState(a.v.Load())
}

// Store atomically stores the JobState value.
func (a *AtomicJobState) Store(s JobState) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap operation with an old
// and new JobState.
func (a *AtomicJobState) CompareAndSwap(o, n JobState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
