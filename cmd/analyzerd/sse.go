package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	api "github.com/storyworks/analyzerd/api/v1"
	"github.com/storyworks/analyzerd/internal/jobmanager"
)

// eventPublisher writes job events to one client as Server-Sent Events.
// Events go out in arrival order and each frame is flushed immediately, so
// output reaches the client while the worker is still running.
type eventPublisher struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventPublisher(w http.ResponseWriter) (*eventPublisher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventPublisher{w: w, flusher: flusher}, nil
}

func (p *eventPublisher) publish(ev jobmanager.Event) error {
	name, data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(p.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}

	p.flusher.Flush()

	return nil
}

func encodeEvent(ev jobmanager.Event) (string, []byte, error) {
	switch ev.Kind {
	case jobmanager.EventResult:
		data, err := json.Marshal(api.AnalysisResult{
			Success:    ev.Result.Success,
			Analysis:   ev.Result.Payload,
			OutputFile: ev.Result.OutputFile,
			Error:      ev.Result.Error,
			TimedOut:   ev.Result.TimedOut,
		})

		return api.EventResult, data, err

	case jobmanager.EventError:
		data, err := json.Marshal(api.LineEvent{Line: ev.Payload, At: ev.Timestamp})

		return api.EventError, data, err

	default:
		data, err := json.Marshal(api.LineEvent{Line: ev.Payload, At: ev.Timestamp})

		return api.EventOutput, data, err
	}
}
