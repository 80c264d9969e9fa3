package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/worldsim/internal/simulator"
)

// dotMonitor prints one dot per completed step: green when the step wrote
// records, gray when it wrote nothing. Lines wrap with a step counter.
type dotMonitor struct {
	mu        sync.Mutex
	w         io.Writer
	total     int
	done      int
	dotCount  int
	lineWidth int
	wrote     lipgloss.Style
	idle      lipgloss.Style
}

var _ simulator.Monitor = (*dotMonitor)(nil)

func newDotMonitor(w io.Writer, r *lipgloss.Renderer, totalSteps int) *dotMonitor {
	return &dotMonitor{
		w:         w,
		total:     totalSteps,
		lineWidth: 50,
		wrote:     r.NewStyle().Foreground(lipgloss.Color("#96CEB4")),
		idle:      r.NewStyle().Foreground(lipgloss.Color("#626262")),
	}
}

func (d *dotMonitor) OnStepStart(int, time.Time) {}

func (d *dotMonitor) OnStepComplete(report simulator.StepReport) {
	d.mu.Lock()
	defer d.mu.Unlock()

	style := d.idle
	if report.Records() > 0 {
		style = d.wrote
	}
	fmt.Fprint(d.w, style.Render("."))
	d.dotCount++
	d.done++

	if d.dotCount >= d.lineWidth {
		fmt.Fprintf(d.w, " [%d/%d]\n", d.done, d.total)
		d.dotCount = 0
	}
}

// Finish terminates a partial line.
func (d *dotMonitor) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dotCount > 0 {
		fmt.Fprintf(d.w, " [%d/%d]\n", d.done, d.total)
		d.dotCount = 0
	}
}

// logMonitor logs step boundaries and throughput at debug level.
type logMonitor struct {
	logger *log.Logger
}

var _ simulator.Monitor = logMonitor{}

func (m logMonitor) OnStepStart(step int, date time.Time) {
	m.logger.Debug("step starting", "step", step, "date", date.Format(time.DateOnly))
}

func (m logMonitor) OnStepComplete(report simulator.StepReport) {
	perSecond := 0.0
	if secs := report.Duration.Seconds(); secs > 0 {
		perSecond = float64(report.Records()+report.Reads()) / secs
	}
	m.logger.Debug("step throughput", "step", report.Step, "ops_per_sec", fmt.Sprintf("%.0f", perSecond))
}
