package unit

import (
	"fmt"
	"time"

	"github.com/airbloc/logger"

	"github.com/beamline/forge/metric"
	"github.com/beamline/forge/partitions"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/runtimeinfo"
)

var defaultLog = logger.New("forge/unit")

// LogSink receives a unit's log lines. Inside a worker process the sink
// relays lines to the coordinator over the results queue.
type LogSink interface {
	Log(message, level string)
}

// Base carries the plumbing every unit needs: a log sink, the runtime
// knowledge of the hosting process and the resolver context in effect.
// Embed it in a unit implementation:
//
//	type CensusLoader struct {
//		unit.Base
//	}
type Base struct {
	sink      LogSink
	knowledge *runtimeinfo.Knowledge
	resolver  *resolve.Context
	metrics   metric.Repository

	buildStarted   time.Time
	progressLogged time.Time

	// ProgressLogInterval is the minimum gap between progress lines.
	ProgressLogInterval time.Duration
}

// PartitionPlea returns the zero Option; PleaOf substitutes the default
// suggestion. Units override this to volunteer their own split.
func (b *Base) PartitionPlea() partitions.Option {
	return partitions.Option{}
}

func (b *Base) SetLogSink(s LogSink) { b.sink = s }

// Log writes a line to the unit's sink, or to the package logger when no
// sink has been attached.
func (b *Base) Log(message, level string) {
	if b.sink != nil {
		b.sink.Log(message, level)
		return
	}
	defaultLog.Info("{} {}", level, message)
}

// LogProgress reports a fractional position through the build. Lines are
// throttled and carry a naive time-remaining estimate.
func (b *Base) LogProgress(fraction float64, message string) {
	if fraction <= 0.0001 || b.buildStarted.IsZero() {
		return
	}
	interval := b.ProgressLogInterval
	if interval == 0 {
		interval = 20 * time.Second
	}
	now := time.Now()
	if !b.progressLogged.IsZero() && now.Sub(b.progressLogged) < interval {
		return
	}
	b.progressLogged = now

	running := now.Sub(b.buildStarted).Seconds()
	remaining := running/fraction - running
	b.Log(fmt.Sprintf("%.2f%% %.2f seconds remaining. %s", fraction*100, remaining, message), "PROGRESS")
}

// MarkBuildStarted starts the clock LogProgress estimates against.
func (b *Base) MarkBuildStarted() { b.buildStarted = time.Now() }

func (b *Base) SetRuntime(k *runtimeinfo.Knowledge) { b.knowledge = k }

// Runtime returns the hosting process's runtime knowledge. Inside a worker it
// carries the worker identity and total worker count.
func (b *Base) Runtime() *runtimeinfo.Knowledge {
	if b.knowledge == nil {
		b.knowledge = runtimeinfo.New(runtimeinfo.DefaultOptions())
	}
	return b.knowledge
}

func (b *Base) SetResolver(rc *resolve.Context) { b.resolver = rc }

// Resolver returns the resolver context threaded into this unit. It is never
// a process-wide singleton; the coordinator and each worker inject their own.
func (b *Base) Resolver() *resolve.Context {
	if b.resolver == nil {
		b.resolver = resolve.NewContext()
	}
	return b.resolver
}

func (b *Base) SetMetricRepository(r metric.Repository) { b.metrics = r }

// Metrics returns the repository this unit's counters accumulate in. The
// host injects one per run; standalone units get a private repository.
func (b *Base) Metrics() metric.Repository {
	if b.metrics == nil {
		b.metrics = metric.NewRepository()
	}
	return b.metrics
}

// AddMetric bumps a named counter. Counters recorded on the coordinator's
// instance survive the run; a worker process's counters die with it, so
// partitioned units record from their observer hooks instead.
func (b *Base) AddMetric(name string, delta int64) {
	b.Metrics().AddMetric(name, delta)
}

// RuntimeAware is satisfied by units embedding Base; the runtime injects
// worker identity through it.
type RuntimeAware interface {
	SetRuntime(*runtimeinfo.Knowledge)
	Runtime() *runtimeinfo.Knowledge
}

// ResolverAware is satisfied by units embedding Base; the runtime threads the
// resolver context through it.
type ResolverAware interface {
	SetResolver(*resolve.Context)
	Resolver() *resolve.Context
}

// LogSinkAware is satisfied by units embedding Base.
type LogSinkAware interface {
	SetLogSink(LogSink)
	Log(message, level string)
}

// MetricsAware is satisfied by units embedding Base; the host harvests the
// unit's counters once the unit succeeds.
type MetricsAware interface {
	SetMetricRepository(metric.Repository)
	Metrics() metric.Repository
}
