package driver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/beamline/forge/job"
	"github.com/beamline/forge/metric"
	"github.com/beamline/forge/taskmsg"
)

// Result carries the outcome of a run: final status, accumulated metrics and
// every error collected along the way.
type Result struct {
	manager *job.LocalManager

	mux sync.Mutex
	err *multierror.Error
}

func newResult(manager *job.LocalManager) *Result {
	return &Result{manager: manager}
}

// Status returns the run's final status.
func (r *Result) Status() job.Status {
	return r.manager.Status()
}

// Metrics returns the metrics accumulated over the run.
func (r *Result) Metrics() metric.Metrics {
	return r.manager.CollectMetrics()
}

// Err returns every error of the run, or nil when it succeeded.
func (r *Result) Err() error {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.err.ErrorOrNil()
}

func (r *Result) addErr(err error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.err = multierror.Append(r.err, err)
}

// SubtaskFailedError reports a sub-task that failed inside a worker process.
// It carries the full failure context the worker shipped back: unit, method,
// arguments, the resolver context in effect and the flattened traceback.
type SubtaskFailedError struct {
	Failure *taskmsg.Failed
}

func (e *SubtaskFailedError) Error() string {
	return fmt.Sprintf("sub-task %s.%s failed: %s", e.Failure.UnitName, e.Failure.MethodName, e.Failure.ExceptionKind)
}

// Detail renders the failure the way a human debugging it wants to read it.
func (e *SubtaskFailedError) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", e.Error())
	fmt.Fprintf(&b, "  kwargs: %v\n", e.Failure.Kwargs)
	fmt.Fprintf(&b, "  resolver context: %v\n", e.Failure.ResolverContext)
	for _, line := range e.Failure.Traceback {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}
