// Package driver executes a built graph: stage by stage, units within a
// stage concurrently, and partitioned units across a pool of worker
// processes.
package driver

import (
	"context"
	"fmt"

	"github.com/airbloc/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/beamline/forge/graph"
	"github.com/beamline/forge/internal/errgroup"
	"github.com/beamline/forge/job"
	"github.com/beamline/forge/metric"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/runtimeinfo"
	"github.com/beamline/forge/unit"
	"github.com/beamline/forge/worker"
)

var log = logger.New("forge/driver")

type Options struct {
	Worker worker.Options
}

func DefaultOptions() Options {
	return Options{Worker: worker.DefaultOptions()}
}

// Local hosts a run in the current process. Partitioned units still execute
// in spawned worker processes; everything else, including every observer
// hook, runs here on the coordinator's own unit instances.
type Local struct {
	graph     *graph.Graph
	run       *job.Run
	manager   *job.LocalManager
	resolver  *resolve.Context
	knowledge *runtimeinfo.Knowledge
	opt       Options
}

func NewLocal(name string, g *graph.Graph, rc *resolve.Context, knowledge *runtimeinfo.Knowledge, opt Options) *Local {
	stages := make([]job.Stage, len(g.RunOrder))
	for i, s := range g.RunOrder {
		stages[i] = job.Stage{
			Name:  fmt.Sprintf("stage-%d", i),
			Units: s.Names(),
		}
	}
	r := job.NewRun(name, stages)
	return &Local{
		graph:     g,
		run:       r,
		manager:   job.NewLocalManager(r),
		resolver:  rc,
		knowledge: knowledge,
		opt:       opt,
	}
}

// Run returns the run being executed.
func (l *Local) Run() *job.Run { return l.run }

// Manager exposes run progress for subscription.
func (l *Local) Manager() *job.LocalManager { return l.manager }

// RunSync executes the whole graph and blocks until it succeeds or the first
// failure. The returned Result always carries the final status and metrics,
// even on error.
func (l *Local) RunSync(ctx context.Context) (*Result, error) {
	metric.RunningBuildsGauge.Inc()
	defer metric.RunningBuildsGauge.Dec()
	timer := prometheus.NewTimer(metric.BuildDurationSummary)
	defer timer.ObserveDuration()

	log.Info("Starting run {} ({} units in {} stages)", l.run.ID, l.run.TotalUnits(), len(l.run.Stages))

	res := newResult(l.manager)
	for i, stage := range l.graph.RunOrder {
		stageName := l.run.Stages[i].Name

		wg, wctx := errgroup.WithContext(ctx)
		for _, node := range stage {
			node := node
			wg.Go(func() error {
				if err := l.runUnit(wctx, stageName, node); err != nil {
					l.manager.MarkUnitAsFailed(node.Name, err)
					return errors.Wrapf(err, "unit %s", node.Name)
				}
				return nil
			})
		}
		if err := wg.Wait(); err != nil {
			res.addErr(err)
			return res, err
		}
	}
	log.Info("Run {} succeeded", l.run.ID)
	return res, nil
}

func (l *Local) runUnit(ctx context.Context, stageName string, node *graph.Node) error {
	u := node.Unit
	log.Verbose("Building {}...", node.Name)

	if ls, ok := u.(unit.LogSinkAware); ok {
		ls.SetLogSink(unitLogSink{name: node.Name})
	}
	if res, ok := u.(unit.ResolverAware); ok {
		res.SetResolver(l.resolver)
	}
	if ra, ok := u.(unit.RuntimeAware); ok {
		ra.SetRuntime(l.knowledge)
	}
	var repo metric.Repository
	if ma, ok := u.(unit.MetricsAware); ok {
		repo = metric.NewRepository()
		ma.SetMetricRepository(repo)
	}

	if closer, ok := u.(unit.DatasetCloser); ok {
		defer func() {
			if err := closer.CloseDatasets(); err != nil {
				log.Warn("{}: closing datasets: {}", node.Name, err)
			}
		}()
	}

	if checker, ok := u.(unit.PreBuildChecker); ok {
		if err := checker.PreBuildCheck(); err != nil {
			return errors.Wrap(err, "pre build check")
		}
	}
	if marker, ok := u.(interface{ MarkBuildStarted() }); ok {
		marker.MarkBuildStarted()
	}

	var err error
	if p, ok := u.(unit.Partitioned); ok {
		err = l.runPartitioned(ctx, node.Name, p)
	} else {
		err = u.Build()
	}
	if err != nil {
		return err
	}

	if checker, ok := u.(unit.PostBuildChecker); ok {
		if err := checker.PostBuildCheck(); err != nil {
			return errors.Wrap(err, "post build check")
		}
	}
	var collected metric.Metrics
	if repo != nil {
		collected = repo.Collect()
	}
	l.manager.MarkUnitAsSucceeded(stageName, node.Name, collected)
	return nil
}

// unitLogSink writes a unit's log lines through the driver's logger. Worker
// processes have their own sink; this one serves units running here.
type unitLogSink struct {
	name string
}

func (s unitLogSink) Log(message, level string) {
	log.Info("{} [{}] {}", s.name, level, message)
}
