package unit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/metric"
	"github.com/beamline/forge/partitions"
	"github.com/beamline/forge/taskmsg"
)

type nopUnit struct {
	Base
}

func (nopUnit) Connects() map[string]dataset.Binding { return nil }
func (nopUnit) Build() error                         { return nil }

type namedUnit struct {
	nopUnit
}

func (namedUnit) Name() string { return "aliased" }

func TestRegistry(t *testing.T) {
	Register("nop", func() Unit { return &nopUnit{} })
	require.True(t, Registered("nop"))
	require.False(t, Registered("missing"))

	u, err := Create("nop")
	require.NoError(t, err)
	require.IsType(t, &nopUnit{}, u)

	_, err = Create("missing")
	require.Error(t, err)

	require.Panics(t, func() {
		Register("nop", func() Unit { return &nopUnit{} })
	})
}

func TestNameOf(t *testing.T) {
	require.Equal(t, "nopUnit", NameOf(&nopUnit{}))
	require.Equal(t, "aliased", NameOf(&namedUnit{}))
}

func TestBaseRecordsMetrics(t *testing.T) {
	var b Base
	b.AddMetric("rows", 3)
	b.AddMetric("rows", 2)
	require.EqualValues(t, 5, b.Metrics().Collect()["rows"])

	injected := metric.NewRepository()
	b.SetMetricRepository(injected)
	b.AddMetric("rows", 1)
	require.EqualValues(t, 1, injected.Collect()["rows"])
}

func TestPleaDefault(t *testing.T) {
	p := struct {
		nopUnit
	}{}
	require.Equal(t, partitions.Option{}, p.PartitionPlea())
}

func TestValidateDescriptors(t *testing.T) {
	dispatch := Dispatch{
		"count_rows": func(taskmsg.Kwargs) (interface{}, error) { return nil, nil },
	}

	err := ValidateDescriptors(dispatch, []taskmsg.Partition{{MethodName: "count_rows"}})
	require.NoError(t, err)

	err = ValidateDescriptors(dispatch, []taskmsg.Partition{{MethodName: "cuont_rows"}})
	require.Error(t, err)

	err = ValidateDescriptors(dispatch, nil)
	require.Error(t, err)
}

func TestValidateWorkerInit(t *testing.T) {
	require.NoError(t, ValidateWorkerInit(nil, 3))
	require.NoError(t, ValidateWorkerInit(make([]taskmsg.Kwargs, 3), 3))
	require.Error(t, ValidateWorkerInit(make([]taskmsg.Kwargs, 2), 3))
}
