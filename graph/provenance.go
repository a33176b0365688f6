package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Edge is one hop of data provenance: a dataset flowing out of one unit and
// into another. An empty From or To marks a leaf (an external input or an end
// product).
type Edge struct {
	From    string
	To      string
	Dataset string
	Label   string
}

// Provenance lists the dataset-flow edges of the graph, sorted for stable
// output. When producer and consumer declare the same dataset under different
// connection names, both names appear joined with " / ".
func (g *Graph) Provenance() []Edge {
	nodes := g.Nodes()

	// consumers of each dataset identity
	consumers := make(map[string][]*Node)
	for _, n := range nodes {
		for identity := range n.Sources {
			consumers[identity] = append(consumers[identity], n)
		}
	}

	var edges []Edge
	for _, n := range nodes {
		for identity := range n.Sources {
			if g.LeafSources.Contains(n.Sources[identity]) {
				edges = append(edges, Edge{To: n.Name, Dataset: identity, Label: n.labels[identity]})
			}
		}
		for identity := range n.Targets {
			if g.LeafTargets.Contains(n.Targets[identity]) {
				edges = append(edges, Edge{From: n.Name, Dataset: identity, Label: n.labels[identity]})
			}
			for _, consumer := range consumers[identity] {
				label := n.labels[identity]
				if consumerLabel := consumer.labels[identity]; consumerLabel != label {
					label += " / " + consumerLabel
				}
				edges = append(edges, Edge{From: n.Name, To: consumer.Name, Dataset: identity, Label: label})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Dataset < edges[j].Dataset
	})
	return edges
}

// Mermaid renders the provenance edges in mermaid format
// (https://github.com/mermaid-js/mermaid#readme) for visualisation.
func (g *Graph) Mermaid() string {
	edges := g.Provenance()
	if len(edges) == 0 {
		return ""
	}

	leaf := 0
	nextLeaf := func() string {
		l := fmt.Sprintf("leaf_%d([ ])", leaf)
		leaf++
		return l
	}

	out := []string{"graph LR"}
	for _, e := range edges {
		from, to := e.From, e.To
		if from == "" {
			from = nextLeaf()
		}
		if to == "" {
			to = nextLeaf()
		}
		out = append(out, fmt.Sprintf("%s-->|%s| %s", from, e.Label, to))
	}
	return strings.Join(out, "\n")
}
