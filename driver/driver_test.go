package driver

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/graph"
	"github.com/beamline/forge/job"
	"github.com/beamline/forge/metric"
	"github.com/beamline/forge/partitions"
	"github.com/beamline/forge/resolve"
	"github.com/beamline/forge/runtimeinfo"
	"github.com/beamline/forge/taskmsg"
	"github.com/beamline/forge/unit"
	"github.com/beamline/forge/worker"
)

func TestMain(m *testing.M) {
	worker.RunIfWorker()
	os.Exit(m.Run())
}

func init() {
	unit.Register("Census", func() unit.Unit { return &censusUnit{} })
	unit.Register("Flaky", func() unit.Unit { return &flakyUnit{} })
}

func testKnowledge() *runtimeinfo.Knowledge {
	return runtimeinfo.New(runtimeinfo.Options{ConcurrencyRatio: 2, MaxConcurrentTasks: 4})
}

// prepareUnit is a plain unit producing the dataset the others read.
type prepareUnit struct {
	unit.Base
	built bool
}

func (p *prepareUnit) Name() string { return "Prepare" }
func (p *prepareUnit) Connects() map[string]dataset.Binding {
	return map[string]dataset.Binding{
		"staging": dataset.New("mem://staging", dataset.Write),
	}
}
func (p *prepareUnit) Build() error {
	p.built = true
	p.AddMetric("rows staged", 40)
	return nil
}

// censusUnit splits its work across two worker processes and observes
// results on the coordinator's instance.
type censusUnit struct {
	unit.Base

	mu        sync.Mutex
	returns   []interface{}
	completed bool
}

func (c *censusUnit) Name() string { return "Census" }
func (c *censusUnit) Connects() map[string]dataset.Binding {
	return map[string]dataset.Binding{
		"staging": dataset.New("mem://staging", dataset.Read),
		"census":  dataset.New("mem://census", dataset.Write),
	}
}
func (c *censusUnit) Build() error { return nil }

func (c *censusUnit) PartitionPlea() partitions.Option {
	return partitions.Option{Minimum: 2, Maximum: 8, Optimal: 2}
}

func (c *censusUnit) PartitionSlice(workerCount int) ([]taskmsg.Partition, error) {
	descriptors := make([]taskmsg.Partition, 4)
	for i := range descriptors {
		descriptors[i] = taskmsg.Partition{
			MethodName: "Count",
			Kwargs:     taskmsg.Kwargs{"start": float64(i * 10), "end": float64(i*10 + 10)},
		}
	}
	return descriptors, nil
}

func (c *censusUnit) SubtaskMethods() unit.Dispatch {
	return unit.Dispatch{
		"Count": func(kwargs taskmsg.Kwargs) (interface{}, error) {
			return kwargs["end"].(float64) - kwargs["start"].(float64), nil
		},
	}
}

func (c *censusUnit) PartitionSubtaskComplete(methodName string, kwargs taskmsg.Kwargs, returnValue interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.returns = append(c.returns, returnValue)
	c.AddMetric("ranges counted", 1)
}

func (c *censusUnit) PartitionComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
}

// flakyUnit fails one of its sub-tasks inside a worker.
type flakyUnit struct {
	unit.Base
}

func (f *flakyUnit) Name() string { return "Flaky" }
func (f *flakyUnit) Connects() map[string]dataset.Binding {
	return map[string]dataset.Binding{
		"out": dataset.New("mem://flaky", dataset.Write),
	}
}
func (f *flakyUnit) Build() error { return nil }

func (f *flakyUnit) PartitionPlea() partitions.Option {
	return partitions.Option{Minimum: 2, Maximum: 8, Optimal: 2}
}

func (f *flakyUnit) PartitionSlice(workerCount int) ([]taskmsg.Partition, error) {
	return []taskmsg.Partition{
		{MethodName: "Explode", Kwargs: taskmsg.Kwargs{"fuse": "short"}},
		{MethodName: "Explode", Kwargs: taskmsg.Kwargs{"fuse": "short"}},
	}, nil
}

func (f *flakyUnit) SubtaskMethods() unit.Dispatch {
	return unit.Dispatch{
		"Explode": func(kwargs taskmsg.Kwargs) (interface{}, error) {
			return nil, errors.New("the fuse was too short")
		},
	}
}

// serialUnit asks for exactly one worker, so it runs on this instance with
// no process spawned.
type serialUnit struct {
	unit.Base

	order     []interface{}
	completed bool
}

func (s *serialUnit) Name() string { return "Serial" }
func (s *serialUnit) Connects() map[string]dataset.Binding {
	return map[string]dataset.Binding{
		"out": dataset.New("mem://serial", dataset.Write),
	}
}
func (s *serialUnit) Build() error { return nil }

func (s *serialUnit) PartitionPlea() partitions.Option {
	return partitions.Option{Minimum: 1, Maximum: 1, Optimal: 1}
}

func (s *serialUnit) PartitionSlice(workerCount int) ([]taskmsg.Partition, error) {
	descriptors := make([]taskmsg.Partition, 5)
	for i := range descriptors {
		descriptors[i] = taskmsg.Partition{
			MethodName: "Step",
			Kwargs:     taskmsg.Kwargs{"n": i},
		}
	}
	return descriptors, nil
}

func (s *serialUnit) SubtaskMethods() unit.Dispatch {
	return unit.Dispatch{
		"Step": func(kwargs taskmsg.Kwargs) (interface{}, error) {
			return kwargs["n"], nil
		},
	}
}

func (s *serialUnit) PartitionSubtaskComplete(methodName string, kwargs taskmsg.Kwargs, returnValue interface{}) {
	s.order = append(s.order, returnValue)
}

func (s *serialUnit) PartitionComplete() { s.completed = true }

func TestLocalRunsGraphAcrossWorkers(t *testing.T) {
	prepare := &prepareUnit{}
	census := &censusUnit{}
	g, err := graph.Build(prepare, census)
	require.NoError(t, err)

	d := NewLocal("census-run", g, resolve.NewContext(), testKnowledge(), DefaultOptions())
	res, err := d.RunSync(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err())
	require.Equal(t, job.Succeeded, res.Status().Status)

	require.True(t, prepare.built)
	require.True(t, census.completed)
	require.Len(t, census.returns, 4)
	var sum float64
	for _, v := range census.returns {
		sum += v.(float64)
	}
	require.Equal(t, float64(40), sum)

	require.Equal(t, metric.Metrics{
		"Prepare/rows staged":   40,
		"Census/ranges counted": 4,
	}, res.Metrics())
}

func TestLocalSerialPathPreservesOrder(t *testing.T) {
	s := &serialUnit{}
	g, err := graph.Build(s)
	require.NoError(t, err)

	d := NewLocal("serial-run", g, resolve.NewContext(), testKnowledge(), DefaultOptions())
	_, err = d.RunSync(context.Background())
	require.NoError(t, err)

	require.True(t, s.completed)
	require.Equal(t, []interface{}{0, 1, 2, 3, 4}, s.order)
}

func TestLocalSurfacesSubtaskFailure(t *testing.T) {
	f := &flakyUnit{}
	g, err := graph.Build(f)
	require.NoError(t, err)

	d := NewLocal("flaky-run", g, resolve.NewContext(), testKnowledge(), DefaultOptions())
	res, err := d.RunSync(context.Background())
	require.Error(t, err)

	var failure *SubtaskFailedError
	require.True(t, errors.As(err, &failure))
	require.Equal(t, "Flaky", failure.Failure.UnitName)
	require.Equal(t, "Explode", failure.Failure.MethodName)
	require.NotEmpty(t, failure.Failure.Traceback)
	require.NotEmpty(t, failure.Detail())

	require.Equal(t, job.Failed, res.Status().Status)
	require.Error(t, res.Err())
}

func TestLocalStopsAtTheFailingStage(t *testing.T) {
	// Flaky writes the dataset Serial would read; Serial must never start
	f := &flakyUnit{}
	reader := &serialUnit{}
	readerBindings := map[string]dataset.Binding{
		"in": dataset.New("mem://flaky", dataset.Read),
	}
	g, err := graph.Build(f, &rebound{serialUnit: reader, bindings: readerBindings})
	require.NoError(t, err)

	d := NewLocal("cascade-run", g, resolve.NewContext(), testKnowledge(), DefaultOptions())
	_, err = d.RunSync(context.Background())
	require.Error(t, err)
	require.Empty(t, reader.order)
}

// rebound overrides a unit's dataset bindings for graph-shape tests.
type rebound struct {
	*serialUnit
	bindings map[string]dataset.Binding
}

func (r *rebound) Connects() map[string]dataset.Binding { return r.bindings }
