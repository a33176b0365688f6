// Package runtimeinfo links the execution environment with the process
// running a unit's work, on either side of the process boundary.
package runtimeinfo

import (
	"runtime"

	"github.com/creasty/defaults"
)

// Options control how the environment's concurrency ceiling is derived.
type Options struct {
	// ConcurrencyRatio multiplies the available CPU count to derive
	// MaxConcurrentTasks. Sub-tasks are expected to spend part of their
	// time blocked on IO, so the default allows two per CPU.
	ConcurrencyRatio int `default:"2"`

	// MaxConcurrentTasks pins the concurrency ceiling to an absolute value,
	// overriding the CPU-derived default.
	MaxConcurrentTasks int `default:"-"`
}

func DefaultOptions() (o Options) {
	if err := defaults.Set(&o); err != nil {
		panic(err)
	}
	return
}

// Knowledge is the per-process record of worker identity and environment
// capacity. The coordinator holds one with no worker identity; every worker
// process is injected with its own before it runs any sub-task.
type Knowledge struct {
	// WorkerID is the zero-based identity of this worker, or nil in the
	// coordinator's process.
	WorkerID *int

	// TotalWorkers is the number of workers in the group, or nil when not
	// running under a worker pool.
	TotalWorkers *int

	// MaxConcurrentTasks is the environment's concurrency ceiling, the
	// capacity input to partition negotiation.
	MaxConcurrentTasks int
}

// New derives Knowledge for the coordinator process.
func New(opt Options) *Knowledge {
	maxTasks := opt.MaxConcurrentTasks
	if defaults.CanUpdate(maxTasks) {
		ratio := opt.ConcurrencyRatio
		if ratio <= 0 {
			ratio = DefaultOptions().ConcurrencyRatio
		}
		maxTasks = runtime.NumCPU() * ratio
	}
	return &Knowledge{MaxConcurrentTasks: maxTasks}
}

// ForWorker derives the Knowledge a worker process runs with.
func ForWorker(workerID, totalWorkers, maxConcurrentTasks int) *Knowledge {
	return &Knowledge{
		WorkerID:           &workerID,
		TotalWorkers:       &totalWorkers,
		MaxConcurrentTasks: maxConcurrentTasks,
	}
}
