package graph

import (
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/beamline/forge/dataset"
	"github.com/beamline/forge/unit"
)

// ErrNotAcyclic is returned when no run order exists. The builder never
// guesses a partial order.
var ErrNotAcyclic = errors.New("the set of processing units can't be built into a single acyclic graph")

// Build infers a run order for an unordered collection of units from their
// declared dataset bindings. READ and READWRITE bindings count as sources,
// WRITE and READWRITE as targets. A unit becomes schedulable once all of its
// sources are satisfied, starting from the leaf sources nothing writes.
//
// A WRITE-only producer of a dataset is always scheduled before a READWRITE
// participant touching the same dataset, regardless of declaration order:
// the READWRITE side reads, so it waits. This conservative tie-break is not
// specified for three or more writers contending on one dataset.
func Build(units ...unit.Unit) (*Graph, error) {
	allSources, allTargets, nodes, err := baseGraph(units)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		LeafSources: allSources.Difference(allTargets),
		LeafTargets: allTargets.Difference(allSources),
	}

	completed := g.LeafSources.Clone()
	pending := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		pending[n.Name] = n
	}

	for len(pending) > 0 {
		var ready Stage
		for _, n := range pending {
			if n.Sources.SubsetOf(completed) {
				ready = append(ready, n)
			}
		}
		if len(ready) == 0 {
			stuck := lo.Keys(pending)
			return nil, errors.Wrapf(ErrNotAcyclic, "no schedulable unit among %v", stuck)
		}

		sortStage(ready)
		g.RunOrder = append(g.RunOrder, ready)
		for _, n := range ready {
			completed.Union(n.Targets)
			delete(pending, n.Name)
		}
	}
	return g, nil
}

// BuildOrdered treats the given units as an explicit strict serial order:
// each unit is wrapped in its own single-member stage, dependencies are taken
// on trust and not inferred.
func BuildOrdered(units ...unit.Unit) (*Graph, error) {
	allSources, allTargets, nodes, err := baseGraph(units)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		LeafSources: allSources.Difference(allTargets),
		LeafTargets: allTargets.Difference(allSources),
	}
	for _, n := range nodes {
		g.RunOrder = append(g.RunOrder, Stage{n})
	}
	return g, nil
}

// baseGraph classifies every unit's bindings and checks name uniqueness.
func baseGraph(units []unit.Unit) (allSources, allTargets dataset.Set, nodes []*Node, err error) {
	allSources = dataset.NewSet()
	allTargets = dataset.NewSet()
	seen := make(map[string]struct{}, len(units))

	for _, u := range units {
		name := unit.NameOf(u)
		if _, dup := seen[name]; dup {
			return nil, nil, nil, errors.Errorf("duplicate unit name: %s", name)
		}
		seen[name] = struct{}{}

		n := &Node{
			Name:    name,
			Unit:    u,
			Sources: dataset.NewSet(),
			Targets: dataset.NewSet(),
			labels:  make(map[string]string),
		}
		for label, binding := range u.Connects() {
			n.labels[binding.Identity] = label

			if binding.Access.CanRead() {
				n.Sources.Add(binding)
				allSources.Add(binding)
			}
			if binding.Access.CanWrite() {
				n.Targets.Add(binding)
				allTargets.Add(binding)
			}
		}
		nodes = append(nodes, n)
	}
	return allSources, allTargets, nodes, nil
}
