// Package unit defines the contracts a processing unit implements so the
// scheduler can order it and the worker runtime can execute it. A processing
// unit is a single build/ETL step; it declares the datasets it connects to,
// exposes a build entry point, and may describe how its work splits into
// parallel sub-tasks.
package unit

import (
	"github.com/pkg/errors"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/partitions"
	"github.com/beamline/forge/taskmsg"
)

// Unit is a processing unit. Connects enumerates its declared dataset
// connections by name; the dependency graph is inferred from nothing else.
type Unit interface {
	Connects() map[string]dataset.Binding
	Build() error
}

// SubtaskFunc executes one sub-task. The returned value must survive a JSON
// round trip so it can be reported across the process boundary.
type SubtaskFunc func(kwargs taskmsg.Kwargs) (interface{}, error)

// Dispatch maps a sub-task method name to its handler. The table is built
// once per unit type; dispatching by method name never reaches into the unit
// with reflection, and an unknown name is rejected before any worker spawns.
type Dispatch map[string]SubtaskFunc

// Partitioned is a unit whose work can be split into concurrent sub-tasks.
//
// PartitionPlea suggests how many parallel sub-tasks the unit would like; the
// planner reconciles it with the environment. PartitionSlice enumerates the
// concrete descriptors for the negotiated worker count; it must produce at
// least one, and the count need not equal workerCount.
type Partitioned interface {
	Unit
	PartitionPlea() partitions.Option
	PartitionSlice(workerCount int) ([]taskmsg.Partition, error)
	SubtaskMethods() Dispatch
}

// WorkerInitialiser lets a unit hand per-worker initialisation arguments to
// the pool. A non-nil return must have exactly workerCount entries.
type WorkerInitialiser interface {
	WorkerInitialise(workerCount int) []taskmsg.Kwargs
}

// Initialisable units receive their worker's initialisation arguments before
// the first sub-task runs.
type Initialisable interface {
	PartitionInitialise(kwargs taskmsg.Kwargs) error
}

// SubtaskObserver receives the return value of each completed sub-task,
// in the coordinator's process and on the coordinator's unit instance.
type SubtaskObserver interface {
	PartitionSubtaskComplete(methodName string, kwargs taskmsg.Kwargs, returnValue interface{})
}

// CompletionObserver is notified once every sub-task has completed.
type CompletionObserver interface {
	PartitionComplete()
}

// PreBuildChecker runs before Build; a returned error stops the unit.
type PreBuildChecker interface {
	PreBuildCheck() error
}

// PostBuildChecker validates the unit's outputs after Build.
type PostBuildChecker interface {
	PostBuildCheck() error
}

// DatasetCloser releases any open dataset connections. Workers call it after
// every descriptor so no sub-task observes another's open resource state.
type DatasetCloser interface {
	CloseDatasets() error
}

// PleaOf returns the unit's partition suggestion, falling back to the default
// when the unit embeds Base and leaves PartitionPlea untouched.
func PleaOf(p Partitioned) partitions.Option {
	o := p.PartitionPlea()
	if o == (partitions.Option{}) {
		return partitions.DefaultOption()
	}
	return o
}

// ValidateDescriptors checks every descriptor's method against the dispatch
// table. This runs before any worker process spawns, so a typo in a method
// name is a construction-time error rather than a runtime one.
func ValidateDescriptors(d Dispatch, descriptors []taskmsg.Partition) error {
	if len(descriptors) == 0 {
		return errors.New("partition slice produced no descriptors")
	}
	for _, desc := range descriptors {
		if _, ok := d[desc.MethodName]; !ok {
			return errors.Errorf("descriptor names unknown sub-task method %q", desc.MethodName)
		}
	}
	return nil
}

// ValidateWorkerInit checks the optional per-worker initialisation arguments
// against the negotiated worker count.
func ValidateWorkerInit(init []taskmsg.Kwargs, workerCount int) error {
	if init != nil && len(init) != workerCount {
		return errors.Errorf("worker initialise returned %d entries for %d workers", len(init), workerCount)
	}
	return nil
}
