package playground

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/taskmsg"
	"github.com/beamline/forge/unit"
)

// sampleCensus stands in for an upstream extract. One NDJSON row per animal.
const sampleCensus = `{"species": "aye-aye", "count": 4}
{"species": "kakapo", "count": 2}
{"species": "aye-aye", "count": 3}
{"species": "quokka", "count": 9}
{"species": "kakapo", "count": 5}`

// Fetcher decodes the raw census into the staging dataset read by Counter.
type Fetcher struct {
	unit.Base

	Records []taskmsg.Kwargs
}

func NewFetcher() *Fetcher {
	return &Fetcher{}
}

func (f *Fetcher) Name() string { return "FetchAnimals" }

func (f *Fetcher) Connects() map[string]dataset.Binding {
	return map[string]dataset.Binding{
		"staging": dataset.New("ndjson://census/animals", dataset.Write),
	}
}

func (f *Fetcher) Build() error {
	location, err := f.Resolver().Resolve("file:///tmp/forge/{build_id}/animals.ndjson")
	if err != nil {
		return err
	}
	lines := strings.Split(sampleCensus, "\n")
	for i, line := range lines {
		var record taskmsg.Kwargs
		if err := jsoniter.UnmarshalFromString(line, &record); err != nil {
			return errors.Wrapf(err, "decode census line %d", i+1)
		}
		f.Records = append(f.Records, record)
		f.LogProgress(float64(i+1)/float64(len(lines)), "decoding census")
	}
	f.AddMetric("rows fetched", int64(len(f.Records)))
	f.Log("Fetched the animal census into "+location, taskmsg.LevelInfo)
	return nil
}
