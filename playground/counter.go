package playground

import (
	"fmt"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/partitions"
	"github.com/beamline/forge/taskmsg"
	"github.com/beamline/forge/unit"
)

// Counter tallies the census per species, splitting the work across worker
// processes by species initial.
type Counter struct {
	unit.Base

	summary map[string]float64
}

func NewCounter() *Counter {
	return &Counter{}
}

func (cnt *Counter) Name() string { return "CountAnimals" }

func (cnt *Counter) Connects() map[string]dataset.Binding {
	return map[string]dataset.Binding{
		"staging": dataset.New("ndjson://census/animals", dataset.Read),
		"summary": dataset.New("ndjson://census/by_species", dataset.Write),
	}
}

func (cnt *Counter) Build() error { return nil }

func (cnt *Counter) PartitionPlea() partitions.Option {
	return partitions.Option{Minimum: 1, Maximum: 16, Optimal: 4}
}

func (cnt *Counter) PartitionSlice(workerCount int) ([]taskmsg.Partition, error) {
	// one descriptor per alphabet range, independent of the worker count
	ranges := []string{"a-g", "h-n", "o-t", "u-z"}
	descriptors := make([]taskmsg.Partition, len(ranges))
	for i, r := range ranges {
		descriptors[i] = taskmsg.Partition{
			MethodName: "CountRange",
			Kwargs:     taskmsg.Kwargs{"range": r},
		}
	}
	return descriptors, nil
}

func (cnt *Counter) SubtaskMethods() unit.Dispatch {
	return unit.Dispatch{
		"CountRange": cnt.countRange,
	}
}

func (cnt *Counter) countRange(kwargs taskmsg.Kwargs) (interface{}, error) {
	speciesRange := kwargs["range"].(string)

	counts := make(map[string]interface{})
	for species, count := range censusTally() {
		if species[0] >= speciesRange[0] && species[0] <= speciesRange[len(speciesRange)-1] {
			counts[species] = count
		}
	}
	cnt.Log(fmt.Sprintf("counted range %s: %d species", speciesRange, len(counts)), taskmsg.LevelInfo)
	return counts, nil
}

func (cnt *Counter) PartitionSubtaskComplete(methodName string, kwargs taskmsg.Kwargs, returnValue interface{}) {
	if cnt.summary == nil {
		cnt.summary = make(map[string]float64)
	}
	for species, count := range returnValue.(map[string]interface{}) {
		cnt.summary[species] += count.(float64)
	}
	cnt.AddMetric("ranges counted", 1)
}

func (cnt *Counter) PartitionComplete() {
	for species, count := range cnt.summary {
		cnt.Log(fmt.Sprintf("%s: %.0f", species, count), taskmsg.LevelInfo)
	}
}

// Summary returns the per-species totals accumulated on the coordinator.
func (cnt *Counter) Summary() map[string]float64 {
	return cnt.summary
}

// censusTally is the decoded census a real deployment would read from the
// staging dataset.
func censusTally() map[string]float64 {
	return map[string]float64{
		"aye-aye": 7,
		"kakapo":  7,
		"quokka":  9,
	}
}
