package jobmanager

import (
	"time"

	"github.com/storyworks/analyzerd/internal/artifact"
)

// EventKind discriminates the events on a job's stream.
type EventKind int

const (
	// EventOutput carries a line of worker stdout or an informational
	// message from the orchestrator (e.g. the timeout announcement).
	EventOutput EventKind = iota

	// EventError carries a line of worker stderr.
	EventError

	// EventResult carries the structured result. It is always the final
	// event and is emitted exactly once per job.
	EventResult
)

var eventKinds = []string{"output", "error", "result"}

func (k EventKind) String() string {
	if int(k) < 0 || int(k) >= len(eventKinds) {
		return "unknown"
	}

	return eventKinds[k]
}

// Event is one element of a job's ordered event sequence. Once emitted it is
// never revised.
type Event struct {
	Kind      EventKind
	Payload   string
	Result    *artifact.Result
	Timestamp time.Time
}

func outputEvent(payload string) Event {
	return Event{Kind: EventOutput, Payload: payload, Timestamp: time.Now()}
}

func errorEvent(payload string) Event {
	return Event{Kind: EventError, Payload: payload, Timestamp: time.Now()}
}

func resultEvent(result artifact.Result) Event {
	return Event{Kind: EventResult, Result: &result, Timestamp: time.Now()}
}
