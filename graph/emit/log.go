package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to an io.Writer in either human-readable text
// or machine-readable JSON-lines form.
//
// Text output:
//
//	[walk_suspended] thread=conv-001 step=7 node=check_approval
//
// JSON output (one event per line):
//
//	{"thread_id":"conv-001","step":7,"node_id":"check_approval","msg":"walk_suspended"}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes the event. Write errors are swallowed: observability must
// never fail a walk.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonMode {
		line := struct {
			ThreadID string                 `json:"thread_id"`
			Step     int                    `json:"step,omitempty"`
			NodeID   string                 `json:"node_id,omitempty"`
			Msg      string                 `json:"msg"`
			Meta     map[string]interface{} `json:"meta,omitempty"`
		}{event.ThreadID, event.Step, event.NodeID, event.Msg, event.Meta}

		data, err := json.Marshal(line)
		if err != nil {
			return
		}
		_, _ = l.writer.Write(append(data, '\n'))
		return
	}

	out := fmt.Sprintf("[%s] thread=%s", event.Msg, event.ThreadID)
	if event.Step > 0 {
		out += fmt.Sprintf(" step=%d", event.Step)
	}
	if event.NodeID != "" {
		out += fmt.Sprintf(" node=%s", event.NodeID)
	}
	for k, v := range event.Meta {
		out += fmt.Sprintf(" %s=%v", k, v)
	}
	_, _ = fmt.Fprintln(l.writer, out)
}
