// Package linemux reassembles raw byte chunks from a process' stdout and
// stderr into complete newline-terminated lines and merges them into a
// single ordered sequence. Each stream is read on its own goroutine;
// completed lines are pushed into a shared bounded channel as soon as they
// are decoded, so cross-stream interleaving reflects arrival order.
package linemux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
)

const (
	// readBufferSize is the temporary buffer size for reading from source pipe.
	// 4KB aligns with typical pipe buffer sizes.
	readBufferSize = 4096

	// defaultLineBuffer is the capacity of the shared line channel when the
	// caller doesn't specify one. Producers block when it is full; lines are
	// never dropped.
	defaultLineBuffer = 64
)

// Stream tags the source of a line.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

var streamNames = []string{"stdout", "stderr"}

func (s Stream) String() string {
	if int(s) < 0 || int(s) >= len(streamNames) {
		return "unknown"
	}

	return streamNames[s]
}

// Line is a single decoded line tagged with its source stream. The line
// terminator is not included.
type Line struct {
	Stream Stream
	Text   string
}

// Mux multiplexes a process' stdout and stderr into a single line channel.
// A line is only emitted once its terminator has been observed; bytes
// arriving without a terminator are buffered until the next read or flushed
// as a final line when the stream ends.
type Mux struct {
	lines chan Line

	mu       sync.Mutex
	readErrs []error

	waitErr error
}

// New starts reading from stdout and stderr. The returned Mux's Lines
// channel is closed once both streams have ended or ctx is cancelled.
// Cancellation is observed by every blocking send.
func New(ctx context.Context, stdout, stderr io.Reader, buffer int) *Mux {
	if buffer <= 0 {
		buffer = defaultLineBuffer
	}

	m := &Mux{lines: make(chan Line, buffer)}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return m.read(gctx, Stdout, stdout)
	})

	g.Go(func() error {
		return m.read(gctx, Stderr, stderr)
	})

	go func() {
		m.waitErr = g.Wait()
		close(m.lines)
	}()

	return m
}

// Lines returns the shared ordered line channel. It is closed when both
// streams have ended.
func (m *Mux) Lines() <-chan Line {
	return m.lines
}

// Err reports any I/O or cancellation errors encountered while reading.
// Only valid after Lines has been closed. Read errors do not stop the other
// stream; the caller decides what to do with them (typically just log).
func (m *Mux) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return errors.Join(append([]error{m.waitErr}, m.readErrs...)...)
}

func (m *Mux) read(ctx context.Context, tag Stream, src io.Reader) error {
	buf := make([]byte, readBufferSize)

	var pending []byte

	emit := func(raw []byte) error {
		select {
		case m.lines <- Line{Stream: tag, Text: decode(raw)}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			for {
				i := bytes.IndexByte(chunk, '\n')
				if i < 0 {
					pending = append(pending, chunk...)
					break
				}

				pending = append(pending, chunk[:i]...)

				if err := emit(pending); err != nil {
					return err
				}

				pending = pending[:0]
				chunk = chunk[i+1:]
			}
		}

		if err != nil {
			// Flush any unterminated trailing bytes as a final line.
			if len(pending) > 0 {
				if emitErr := emit(pending); emitErr != nil {
					return emitErr
				}
			}

			if err == io.EOF {
				return nil
			}

			// A read failure on one stream must not tear down the other;
			// record it and let the stream end.
			m.mu.Lock()
			m.readErrs = append(
				m.readErrs,
				fmt.Errorf("read %s: %w", tag, err),
			)
			m.mu.Unlock()

			return nil
		}
	}
}

// decode converts raw line bytes to a string, stripping a trailing carriage
// return and replacing invalid UTF-8 so a bad byte never crashes the stream.
func decode(raw []byte) string {
	raw = bytes.TrimSuffix(raw, []byte{'\r'})

	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
