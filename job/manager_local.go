package job

import (
	"fmt"
	"sync"

	"github.com/airbloc/logger"
	"go.uber.org/atomic"

	"github.com/beamline/forge/metric"
)

var log = logger.New("forge/job")

// LocalManager tracks run progress inside the coordinator's process. All of
// the run's state lives here; worker processes only ever report through
// messages, never by sharing this structure.
type LocalManager struct {
	run            *Run
	runStatus      *Status
	stageStatuses  map[string]*StageStatus
	doneStageCount atomic.Int32
	metrics        metric.Metrics

	runSubscriptions   []func(*Status)
	stageSubscriptions []func(stageName string, stageStatus *StageStatus)
	unitSubscriptions  []func(stageName string, doneCountInStage int)
	mu                 sync.RWMutex
}

func NewLocalManager(r *Run) *LocalManager {
	return &LocalManager{
		run:           r,
		runStatus:     newStatus(),
		stageStatuses: make(map[string]*StageStatus),
		metrics:       make(metric.Metrics),
	}
}

func (l *LocalManager) MarkUnitAsSucceeded(stageName, unitName string, metrics metric.Metrics) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.metrics.Add(metrics.AddPrefix(unitName + "/"))

	stageStatus, ok := l.stageStatuses[stageName]
	if !ok {
		stageStatus = newStageStatus()
		l.stageStatuses[stageName] = stageStatus
	}
	doneUnitsInStage := int(stageStatus.DoneUnits.Inc())
	for _, callback := range l.unitSubscriptions {
		go callback(stageName, doneUnitsInStage)
	}

	stage := l.run.GetStage(stageName)
	if stage != nil && doneUnitsInStage == len(stage.Units) {
		l.markStageAsSucceeded(stageName, stageStatus)
	}
}

func (l *LocalManager) markStageAsSucceeded(stageName string, stageStatus *StageStatus) {
	log.Verbose("Stage {} succeeded", stageName)

	stageStatus.Complete(Succeeded)
	for _, callback := range l.stageSubscriptions {
		go callback(stageName, stageStatus)
	}

	doneStagesInRun := int(l.doneStageCount.Inc())
	if doneStagesInRun == len(l.run.Stages) {
		l.markRunAsSucceeded()
	}
}

func (l *LocalManager) markRunAsSucceeded() {
	log.Verbose("Run {} succeeded", l.run.ID)

	l.runStatus.Complete(Succeeded)
	for _, callback := range l.runSubscriptions {
		go callback(l.runStatus)
	}
}

func (l *LocalManager) MarkUnitAsFailed(unitName string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	log.Verbose("Run {} failed by {}", l.run.ID, unitName)

	l.runStatus.Complete(Failed)
	l.runStatus.Errors = append(l.runStatus.Errors, Error{
		Unit:       unitName,
		Message:    err.Error(),
		Stacktrace: fmt.Sprintf("%+v", err),
	})
	for _, callback := range l.runSubscriptions {
		go callback(l.runStatus)
	}
}

// OnRunCompletion registers callback for completion events of the run.
func (l *LocalManager) OnRunCompletion(callback func(*Status)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runSubscriptions = append(l.runSubscriptions, callback)
}

// OnStageCompletion registers callback for stage completion events.
func (l *LocalManager) OnStageCompletion(callback func(stageName string, stageStatus *StageStatus)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stageSubscriptions = append(l.stageSubscriptions, callback)
}

// OnUnitCompletion registers callback for unit completion events. For
// performance, only the number of currently finished units in the stage is
// given to the callback.
func (l *LocalManager) OnUnitCompletion(callback func(stageName string, doneCountInStage int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unitSubscriptions = append(l.unitSubscriptions, callback)
}

// Status returns a point-in-time copy of the run status.
func (l *LocalManager) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := *l.runStatus
	s.Errors = append([]Error(nil), l.runStatus.Errors...)
	return s
}

func (l *LocalManager) CollectMetrics() metric.Metrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	collected := make(metric.Metrics)
	collected.Add(l.metrics)
	return collected
}
