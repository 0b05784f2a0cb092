package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const maxSSELine = 1 << 20

// ReadEvents parses a text/event-stream body and calls fn once per frame.
// Comment lines are skipped. It returns nil when r reaches EOF.
func ReadEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var (
		name string
		data strings.Builder
	)
	dispatch := func() error {
		defer func() {
			name = ""
			data.Reset()
		}()
		if name == "" && data.Len() == 0 {
			return nil
		}
		var ev Event
		if data.Len() > 0 {
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return fmt.Errorf("decode %s event: %w", name, err)
			}
		}
		if ev.Kind == "" {
			ev.Kind = name
		}
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}
