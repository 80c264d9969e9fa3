package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/worldsim/internal/config"
	"github.com/lox/worldsim/internal/simulator"
)

// renderReport formats a run summary for the terminal.
func renderReport(r *lipgloss.Renderer, cfg *config.Config, result *simulator.Result) string {
	title := r.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Bold(true).
		Padding(0, 1)
	heading := r.NewStyle().
		Foreground(lipgloss.Color("#FFD700")).
		Bold(true)
	label := r.NewStyle().
		Foreground(lipgloss.Color("#626262")).
		Width(14)
	value := r.NewStyle().
		Foreground(lipgloss.Color("#96CEB4")).
		Align(lipgloss.Right).
		Width(10)

	row := func(name string, v any) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, label.Render(name), value.Render(fmt.Sprint(v)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title.Render(fmt.Sprintf("worldsim seed=%d", cfg.Seed)))
	fmt.Fprintf(&b, "%d/%d steps, scale factor %d, %s storage, %s\n\n",
		len(result.Steps), cfg.Iterations, cfg.ScaleFactor, cfg.Storage.Driver,
		result.Duration.Round(time.Millisecond))

	fmt.Fprintln(&b, heading.Render("Records"))
	counts := result.Counts
	for _, line := range []struct {
		name string
		n    int
	}{
		{"people", counts.People},
		{"relocations", counts.Relocations},
		{"marriages", counts.Marriages},
		{"parentships", counts.Parentships},
		{"friendships", counts.Friendships},
		{"companies", counts.Companies},
		{"employments", counts.Employments},
	} {
		fmt.Fprintln(&b, row(line.name, line.n))
	}

	reads := 0
	for _, step := range result.Steps {
		reads += step.Reads()
	}
	if reads > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, heading.Render("Reads"))
		fmt.Fprintln(&b, row("results", reads))
	}

	if len(result.RegionRecords) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, heading.Render("Output per region run"))
		header := r.NewStyle().Bold(true)
		fmt.Fprintln(&b, header.Render(fmt.Sprintf("%-18s %8s %8s %8s %8s %8s", "agent", "runs", "mean", "median", "p95", "max")))

		// Agents in run order, then anything else alphabetically.
		names := slices.Collect(maps.Keys(result.RegionRecords))
		slices.SortFunc(names, func(a, b string) int {
			if d := agentOrder(a) - agentOrder(b); d != 0 {
				return d
			}
			return strings.Compare(a, b)
		})
		for _, name := range names {
			s := result.RegionRecords[name]
			fmt.Fprintf(&b, "%-18s %8d %8.2f %8.2f %8.0f %8.0f\n", name, s.Count, s.Mean, s.Median, s.P95, s.Max)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func agentOrder(name string) int {
	if i := slices.Index(config.AgentNames, name); i >= 0 {
		return i
	}
	return len(config.AgentNames)
}
