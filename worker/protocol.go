package worker

import (
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/taskmsg"
)

// EnvFlag marks a process as a spawned worker. The coordinator re-executes
// its own binary with this variable set; nothing else distinguishes the two
// roles.
const EnvFlag = "FORGE_WORKER"

// handshake is the first line the coordinator writes on a worker's stdin,
// before any descriptor. It carries everything the worker is allowed to know:
// inherited process state is never consulted.
type handshake struct {
	UnitName           string           `json:"unitName"`
	WorkerID           int              `json:"workerId"`
	TotalWorkers       int              `json:"totalWorkers"`
	MaxConcurrentTasks int              `json:"maxConcurrentTasks"`
	Resolver           resolve.Snapshot `json:"resolver"`
	InitKwargs         taskmsg.Kwargs   `json:"initKwargs,omitempty"`
}

func writeHandshake(w io.Writer, h handshake) error {
	data, err := jsoniter.Marshal(h)
	if err != nil {
		return errors.Wrap(err, "encode handshake")
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "write handshake")
	}
	return nil
}

// stopSentinel ends a worker's intake. A descriptor with no method name is
// not schedulable, so the value is unambiguous on the wire.
func stopSentinel() *taskmsg.Partition {
	return &taskmsg.Partition{}
}

func isStopSentinel(p *taskmsg.Partition) bool {
	return p.MethodName == ""
}

// messageWriter serializes protocol writes from the sub-task goroutine and
// the unit's log sink onto a single stream.
type messageWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (m *messageWriter) Write(msg taskmsg.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return taskmsg.Write(m.w, msg)
}

// relaySink forwards a unit's log lines to the coordinator as Log messages.
// Log messages are not terminal, so a chatty unit cannot skew completion
// accounting.
type relaySink struct {
	out *messageWriter
}

func (s *relaySink) Log(message, level string) {
	// a lost log line is not worth killing the sub-task over
	_ = s.out.Write(&taskmsg.Log{Message: message, Level: level})
}
