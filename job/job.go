// Package job tracks the lifecycle of one build run: which units succeeded,
// how far each stage has progressed and what failed where.
package job

import (
	"time"

	"github.com/beamline/forge/internal/util"
)

// Run is one execution of a build graph.
type Run struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Stages []Stage `json:"stages"`

	SubmittedAt time.Time `json:"submittedAt"`
}

// Stage is one rung of the run order: the units that may execute
// concurrently once the stage starts.
type Stage struct {
	Name  string   `json:"name"`
	Units []string `json:"units"`
}

func NewRun(name string, stages []Stage) *Run {
	return &Run{
		ID:          util.GenerateID("R"),
		Name:        name,
		Stages:      stages,
		SubmittedAt: time.Now(),
	}
}

func (r *Run) GetStage(name string) *Stage {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

func (r *Run) TotalUnits() (n int) {
	for _, s := range r.Stages {
		n += len(s.Units)
	}
	return
}
