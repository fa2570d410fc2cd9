package main

import (
	"bufio"
	"io"
	"strings"
)

// decodeStream parses a Server-Sent Events body, invoking handle once per
// complete event. Multi-line data fields are joined with newlines per the
// SSE format.
func decodeStream(body io.Reader, handle func(name, data string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line, "data: "))

		case line == "":
			if name != "" || data.Len() > 0 {
				if err := handle(name, data.String()); err != nil {
					return err
				}

				name = ""
				data.Reset()
			}
		}
	}

	return scanner.Err()
}
