// Package forge orchestrates dataflow builds: it infers an execution order
// for a set of processing units from the datasets they declare, then runs
// them stage by stage, spreading partitioned units across worker processes.
package forge

import (
	"context"

	"github.com/airbloc/logger"

	"github.com/beamline/forge/driver"
	"github.com/beamline/forge/graph"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/runtimeinfo"
	"github.com/beamline/forge/unit"
	"github.com/beamline/forge/worker"
)

var log = logger.New("forge")

// Build collects processing units and the context they run under. Construct
// with NewBuild, chain configuration, then RunSync.
type Build struct {
	name     string
	units    []unit.Unit
	ordered  bool
	resolver *resolve.Context
	opt      *Options
}

func NewBuild(name string, units ...unit.Unit) *Build {
	return &Build{
		name:     name,
		units:    units,
		resolver: resolve.NewContext(),
		opt:      DefaultOptions(),
	}
}

func (b *Build) WithOptions(opt *Options) *Build {
	b.opt = opt
	return b
}

// WithResolver replaces the build's resolver context. The same context is
// threaded to every unit; partitioned units receive a snapshot of it.
func (b *Build) WithResolver(rc *resolve.Context) *Build {
	b.resolver = rc
	return b
}

// Ordered takes the unit list as an explicit serial order instead of
// inferring dependencies from dataset bindings.
func (b *Build) Ordered() *Build {
	b.ordered = true
	return b
}

// Resolver returns the build's resolver context, for pushing variables:
//
//	release := b.Resolver().WithVars(map[string]interface{}{"build_id": id})
//	defer release()
func (b *Build) Resolver() *resolve.Context {
	return b.resolver
}

// Plan computes the execution graph without running anything.
func (b *Build) Plan() (*graph.Graph, error) {
	if b.ordered {
		return graph.BuildOrdered(b.units...)
	}
	return graph.Build(b.units...)
}

// RunSync plans and executes the build, blocking until it finishes.
func (b *Build) RunSync(ctx context.Context) (*driver.Result, error) {
	g, err := b.Plan()
	if err != nil {
		return nil, err
	}
	log.Info("Run order of {}: {}", b.name, g)

	knowledge := runtimeinfo.New(b.opt.Runtime)
	d := driver.NewLocal(b.name, g, b.resolver, knowledge, b.opt.Driver)
	return d.RunSync(ctx)
}

// Run plans and executes units in one shot with default options.
func Run(ctx context.Context, name string, units ...unit.Unit) (*driver.Result, error) {
	return NewBuild(name, units...).RunSync(ctx)
}

// RunIfWorker turns the process into a worker when it was spawned as one,
// and never returns in that case. Call it at the top of main, after every
// partitioned unit type has been registered.
func RunIfWorker() {
	worker.RunIfWorker()
}
