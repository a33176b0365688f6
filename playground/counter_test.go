package playground

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beamline/forge"
	"github.com/beamline/forge/worker"
)

func TestMain(m *testing.M) {
	worker.RunIfWorker()
	os.Exit(m.Run())
}

func TestAnimalCensusPipeline(t *testing.T) {
	fetch := NewFetcher()
	count := NewCounter()

	b := forge.NewBuild("animal-census", count, fetch)
	release := b.Resolver().WithVars(map[string]interface{}{"build_id": "test"})
	defer release()

	res, err := b.RunSync(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.Err())

	require.Len(t, fetch.Records, 5)
	require.Equal(t, map[string]float64{
		"aye-aye": 7,
		"kakapo":  7,
		"quokka":  9,
	}, count.Summary())

	metrics := res.Metrics()
	require.Equal(t, uint64(5), metrics["FetchAnimals/rows fetched"])
	require.Equal(t, uint64(4), metrics["CountAnimals/ranges counted"])
}
