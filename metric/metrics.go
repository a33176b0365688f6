// Package metric carries the counters a run accumulates: named unit-level
// tallies plus process-wide prometheus instruments.
package metric

import (
	"fmt"
	"sort"

	"github.com/thoas/go-funk"
)

// Metrics is a flattened set of named counters, keyed "unitName/counter"
// once a run manager has merged them.
type Metrics map[string]uint64

// Add merges o into m, summing counters that share a key.
func (m Metrics) Add(o Metrics) {
	for k, v := range o {
		m[k] += v
	}
}

// AddPrefix returns a copy of m with every key prefixed with p.
func (m Metrics) AddPrefix(p string) (prefixed Metrics) {
	prefixed = make(Metrics)
	for k, v := range m {
		prefixed[p+k] = v
	}
	return
}

func (m Metrics) String() string {
	keys := funk.Keys(m).([]string)
	sort.Strings(keys)

	metricLogs := ""
	for _, key := range keys {
		metricLogs += fmt.Sprintf(" - %s: %d\n", key, m[key])
	}
	return metricLogs
}
