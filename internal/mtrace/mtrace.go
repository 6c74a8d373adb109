// Package mtrace is a Chrome-trace-format event sink for build phase
// timing: one PendingEvent per (module, phase) invocation, written as
// a JSON array any chrome://tracing-compatible viewer can load.
//
// Narrowed to the one event shape the build engine actually emits — a
// phase's start and duration — with no host resource-counter sampling,
// which has no equivalent concern in this domain.
package mtrace

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = io.Discard
)

// Sink directs all subsequent PendingEvent.Done writes to w as a Chrome trace event
// file (a JSON array; the closing ']' is optional and omitted).
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	w.Write([]byte{'['})
}

// Enable creates and sinks to $TMPDIR/mgbuild.traces/prefix.$PID.
func Enable(prefix string) error {
	fn := filepath.Join(os.TempDir(), "mgbuild.traces", fmt.Sprintf("%s.%d", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	Sink(f)
	return nil
}

// PendingEvent is one in-flight phase invocation; call Done when it
// completes to emit it to the sink.
type PendingEvent struct {
	Name           string      `json:"name"`
	Categories     string      `json:"cat"`
	Type           string      `json:"ph"`
	ClockTimestamp uint64      `json:"ts"`
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"`
	Tid            uint64      `json:"tid"`
	Args           interface{} `json:"args,omitempty"`

	start time.Time
}

// Done records pe's elapsed duration and writes it to the sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[mtrace] %v", err)
	}
}

// ModulePhase starts a PendingEvent for one (module, phase) build
// step, categorized by module so a trace viewer can group by it.
func ModulePhase(module, phase string, tid int) *PendingEvent {
	return &PendingEvent{
		Name:           phase,
		Categories:     module,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		start:          time.Now(),
	}
}
