// Package taskmsg defines the tagged message protocol exchanged between a
// worker process and its coordinator. A worker terminates each dispatched
// sub-task with exactly one Complete or Failed message; Log messages may be
// interleaved and do not count towards completion.
package taskmsg

import "github.com/beamline/forge/resolve"

// Kwargs are the keyword arguments of a sub-task method. Values must survive
// a JSON round trip; numbers arrive at the far side as float64.
type Kwargs map[string]interface{}

// Partition describes one unit of partitioned work: a method name and the
// keyword arguments it should be invoked with. Descriptors are immutable
// values; submission order is preserved on the intake queue.
type Partition struct {
	MethodName string `json:"methodName"`
	Kwargs     Kwargs `json:"kwargs"`
}

func (Partition) Terminal() bool { return false }

// Message is implemented by every variant of the protocol.
type Message interface {
	// Terminal reports whether the message accounts for one dispatched
	// descriptor in the coordinator's completion counting.
	Terminal() bool
}

// Complete reports the successful execution of one descriptor.
type Complete struct {
	MethodName  string      `json:"methodName"`
	Kwargs      Kwargs      `json:"kwargs"`
	ReturnValue interface{} `json:"returnValue"`
}

func (Complete) Terminal() bool { return true }

// Failed reports that a descriptor raised an error inside a worker. The
// original error value cannot cross the process boundary, so the message
// carries enough context to reproduce: the unit, the method and arguments,
// the resolver context in effect and a flattened traceback.
type Failed struct {
	UnitName        string           `json:"unitName"`
	MethodName      string           `json:"methodName"`
	Kwargs          Kwargs           `json:"kwargs"`
	ResolverContext resolve.Snapshot `json:"resolverContext"`
	ExceptionKind   string           `json:"exceptionKind"`
	Traceback       []string         `json:"traceback"`
}

func (Failed) Terminal() bool { return true }

// Log relays a worker's log line to the coordinator's logging sink.
type Log struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (Log) Terminal() bool { return false }

// Log levels, in the order a sink would rank them.
const (
	LevelDebug    = "DEBUG"
	LevelProgress = "PROGRESS"
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
)
