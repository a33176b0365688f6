package driver

import (
	"context"

	"github.com/pkg/errors"

	"github.com/beamline/forge/metric"
	"github.com/beamline/forge/partitions"
	"github.com/beamline/forge/taskmsg"
	"github.com/beamline/forge/unit"
	"github.com/beamline/forge/worker"
)

// runPartitioned negotiates a worker count, slices the unit's work exactly
// once and executes every descriptor, serially here or across a worker pool.
func (l *Local) runPartitioned(ctx context.Context, unitName string, p unit.Partitioned) error {
	workerCount, err := partitions.Negotiate(unit.PleaOf(p), l.knowledge.MaxConcurrentTasks)
	if err != nil {
		return err
	}
	descriptors, err := p.PartitionSlice(workerCount)
	if err != nil {
		return errors.Wrap(err, "partition slice")
	}
	dispatch := p.SubtaskMethods()
	if err := unit.ValidateDescriptors(dispatch, descriptors); err != nil {
		return err
	}

	var initKwargs []taskmsg.Kwargs
	if wi, ok := p.(unit.WorkerInitialiser); ok {
		initKwargs = wi.WorkerInitialise(workerCount)
		if err := unit.ValidateWorkerInit(initKwargs, workerCount); err != nil {
			return err
		}
	}

	log.Verbose("{}: {} descriptors across {} workers", unitName, len(descriptors), workerCount)
	if workerCount == 1 {
		return l.runSerially(ctx, p, dispatch, descriptors, initKwargs)
	}
	return l.runOnPool(ctx, unitName, p, descriptors, initKwargs, workerCount)
}

// runSerially executes descriptors in submission order on the coordinator's
// own unit instance. No process is spawned and no snapshot is taken; the
// unit sees the live resolver context.
func (l *Local) runSerially(ctx context.Context, p unit.Partitioned, dispatch unit.Dispatch, descriptors []taskmsg.Partition, initKwargs []taskmsg.Kwargs) error {
	if init, ok := p.(unit.Initialisable); ok && initKwargs != nil {
		if err := init.PartitionInitialise(initKwargs[0]); err != nil {
			return errors.Wrap(err, "partition initialise")
		}
	}
	observer, observes := p.(unit.SubtaskObserver)

	for _, desc := range descriptors {
		if err := ctx.Err(); err != nil {
			return err
		}
		returnValue, err := dispatch[desc.MethodName](desc.Kwargs)
		if err != nil {
			return errors.Wrapf(err, "sub-task %s", desc.MethodName)
		}
		if observes {
			observer.PartitionSubtaskComplete(desc.MethodName, desc.Kwargs, returnValue)
		}
	}
	if completion, ok := p.(unit.CompletionObserver); ok {
		completion.PartitionComplete()
	}
	return nil
}

// runOnPool ships descriptors to a pool of worker processes and drains their
// terminal messages, invoking observer hooks on the coordinator's instance.
func (l *Local) runOnPool(ctx context.Context, unitName string, p unit.Partitioned, descriptors []taskmsg.Partition, initKwargs []taskmsg.Kwargs, workerCount int) error {
	snapshot, err := l.resolver.Capture()
	if err != nil {
		return errors.Wrap(err, "capture resolver context")
	}

	pool, err := worker.Spawn(unitName, workerCount, snapshot, initKwargs, l.knowledge, l.opt.Worker)
	if err != nil {
		return err
	}
	metric.RunningWorkersGauge.WithLabelValues(unitName).Add(float64(workerCount))
	defer metric.RunningWorkersGauge.WithLabelValues(unitName).Sub(float64(workerCount))
	defer pool.Close()

	for _, desc := range descriptors {
		if err := pool.Submit(desc); err != nil {
			return err
		}
	}
	pool.CloseIntake()

	if err := l.drain(ctx, unitName, p, pool, len(descriptors)); err != nil {
		return err
	}
	if err := pool.Join(); err != nil {
		return errors.Wrap(err, "join workers")
	}
	if completion, ok := p.(unit.CompletionObserver); ok {
		completion.PartitionComplete()
	}
	return nil
}

// drain consumes messages until every dispatched descriptor is accounted for
// by exactly one terminal. The first Failed aborts the unit; a fatal from the
// pool means accounting can no longer be trusted and aborts too.
func (l *Local) drain(ctx context.Context, unitName string, p unit.Partitioned, pool *worker.Pool, expected int) error {
	observer, observes := p.(unit.SubtaskObserver)

	for done := 0; done < expected; {
		select {
		case msg := <-pool.Results():
			switch m := msg.(type) {
			case *taskmsg.Complete:
				done++
				metric.SubtasksCompletedCounter.WithLabelValues(unitName).Inc()
				log.Verbose("{}: {}/{} sub-tasks done ({}%)", unitName, done, expected, done*100/expected)
				if observes {
					observer.PartitionSubtaskComplete(m.MethodName, m.Kwargs, m.ReturnValue)
				}
			case *taskmsg.Failed:
				metric.SubtasksFailedCounter.WithLabelValues(unitName).Inc()
				return &SubtaskFailedError{Failure: m}
			default:
				return errors.Errorf("unexpected %T on the results queue", m)
			}

		case err := <-pool.Fatal():
			return err

		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
