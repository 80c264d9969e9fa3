package simulator

import "time"

// Monitor receives notifications about step progress.
type Monitor interface {
	// OnStepStart is called before the first agent of a step runs.
	OnStepStart(step int, date time.Time)

	// OnStepComplete is called after every agent of a step has run.
	OnStepComplete(report StepReport)
}

// NullMonitor is a no-op implementation.
type NullMonitor struct{}

func (NullMonitor) OnStepStart(int, time.Time) {}
func (NullMonitor) OnStepComplete(StepReport)  {}

// MultiMonitor fans events out to multiple monitors.
type MultiMonitor struct {
	monitors []Monitor
}

// NewMultiMonitor builds a composite monitor, pruning nil entries and
// returning a NullMonitor when none remain.
func NewMultiMonitor(monitors ...Monitor) Monitor {
	filtered := make([]Monitor, 0, len(monitors))
	for _, m := range monitors {
		if m != nil {
			filtered = append(filtered, m)
		}
	}

	switch len(filtered) {
	case 0:
		return NullMonitor{}
	case 1:
		return filtered[0]
	default:
		return &MultiMonitor{monitors: filtered}
	}
}

func (m *MultiMonitor) OnStepStart(step int, date time.Time) {
	for _, monitor := range m.monitors {
		monitor.OnStepStart(step, date)
	}
}

func (m *MultiMonitor) OnStepComplete(report StepReport) {
	for _, monitor := range m.monitors {
		monitor.OnStepComplete(report)
	}
}
