// Package apiv1 defines the JSON wire types shared by the analyzerd HTTP
// API and its clients.
//
// An analysis runs as one streaming request: the client POSTs an
// AnalysisRequest and receives a Server-Sent Events stream. Each "output"
// and "error" event carries a LineEvent; the stream ends with exactly one
// "result" event carrying an AnalysisResult, unless the client disconnects
// first.
package apiv1

import (
	"encoding/json"
	"time"
)

// Event names on the SSE stream.
const (
	EventOutput = "output"
	EventError  = "error"
	EventResult = "result"
)

// AnalysisRequest is the body of POST /v1/analyses.
type AnalysisRequest struct {
	// Subject is the repository to analyze, e.g. "acme/widgets".
	Subject string `json:"subject"`

	// Kind is the analysis depth: "quick", "full" or "enhanced".
	Kind string `json:"kind"`

	// Focus optionally narrows the analysis, e.g. "security".
	Focus string `json:"focus,omitempty"`
}

// LineEvent is the payload of "output" and "error" stream events.
type LineEvent struct {
	Line string    `json:"line"`
	At   time.Time `json:"at"`
}

// AnalysisResult is the payload of the terminal "result" stream event.
type AnalysisResult struct {
	Success bool `json:"success"`

	// Analysis is the worker's JSON artifact on a clean run, or a
	// {"raw_output": ...} wrapper when the artifact was missing or
	// unparsable despite a zero exit.
	Analysis json.RawMessage `json:"analysis,omitempty"`

	OutputFile string `json:"output_file,omitempty"`
	Error      string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// KindInfo describes one supported analysis kind.
type KindInfo struct {
	Kind     string `json:"kind"`
	Deadline string `json:"deadline"`
}

// ErrorResponse is the body of non-streaming error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
