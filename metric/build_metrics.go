package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RunningBuildsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "forge_running_builds",
	Help: "The current number of running builds",
})

var BuildDurationSummary = promauto.NewSummary(prometheus.SummaryOpts{
	Name: "forge_build_duration_sec",
	Help: "Build execution duration in seconds",
})

var RunningWorkersGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "forge_running_workers",
		Help: "The current number of live worker processes per unit",
	},
	[]string{"unit"},
)

var SubtasksCompletedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "forge_subtasks_completed_total",
		Help: "Sub-tasks finished successfully, per unit",
	},
	[]string{"unit"},
)

var SubtasksFailedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "forge_subtasks_failed_total",
		Help: "Sub-tasks reported as failed, per unit",
	},
	[]string{"unit"},
)
