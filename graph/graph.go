// Package graph infers the execution order of processing units from the
// datasets they declare as read/write dependencies.
package graph

import (
	"sort"
	"strings"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/unit"
)

// Node is one processing unit prepared for scheduling: its declared bindings
// classified into sources and targets. Built once per scheduling pass and
// immutable afterwards.
type Node struct {
	Name string
	Unit unit.Unit

	Sources dataset.Set
	Targets dataset.Set

	// labels maps a dataset identity back to the connection name the unit
	// declared it under; used for provenance rendering only.
	labels map[string]string
}

func (n *Node) String() string { return n.Name }

// Stage is a set of nodes that are safe to execute concurrently because
// every one of their source datasets is already satisfied. Nodes are kept
// sorted by name for stable output; the order carries no execution meaning.
type Stage []*Node

func (s Stage) Names() []string {
	names := make([]string, len(s))
	for i, n := range s {
		names[i] = n.Name
	}
	return names
}

func (s Stage) String() string {
	return "{" + strings.Join(s.Names(), ", ") + "}"
}

// Graph is the result of one scheduling pass. It is computed on demand and
// not cached across builds: dataset identities may depend on runtime-resolved
// values, so yesterday's graph can be wrong today.
type Graph struct {
	// LeafSources are datasets read by some unit but written by none; the
	// build's external inputs.
	LeafSources dataset.Set

	// LeafTargets are datasets written but never read back; the build's
	// end products.
	LeafTargets dataset.Set

	// RunOrder is a strict total order across stages: stage k+1 must not
	// start before every unit of stage k has completed.
	RunOrder []Stage
}

// Nodes returns every node of the run order, in stage order.
func (g *Graph) Nodes() []*Node {
	var nodes []*Node
	for _, stage := range g.RunOrder {
		nodes = append(nodes, stage...)
	}
	return nodes
}

func (g *Graph) String() string {
	stages := make([]string, len(g.RunOrder))
	for i, s := range g.RunOrder {
		stages[i] = s.String()
	}
	return "[" + strings.Join(stages, " -> ") + "]"
}

func sortStage(s Stage) {
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
}
