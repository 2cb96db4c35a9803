package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	answerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	statusPartial = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
)

// styleForStatus colors request and step statuses. Step "failed" shares
// the request constant.
func styleForStatus(status string) lipgloss.Style {
	switch status {
	case string(api.RequestStatusCompleted), string(api.StepStatusSuccess):
		return statusOK
	case string(api.RequestStatusFailed), string(api.StepStatusTimeout):
		return statusFailed
	case string(api.RequestStatusPartial):
		return statusPartial
	default:
		return statusRunning
	}
}

// renderTrace formats a trace as plan, step results and final answer.
func renderTrace(t *api.Trace) string {
	var b strings.Builder
	r := t.Request
	if r == nil {
		return ""
	}

	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Request"), r.ID)
	fmt.Fprintf(&b, "%s %s  %s %s\n",
		dimStyle.Render("domain:"), r.DomainID,
		dimStyle.Render("status:"), styleForStatus(string(r.Status)).Render(string(r.Status)))
	fmt.Fprintf(&b, "%s %s\n\n", dimStyle.Render("query:"), r.Query)

	b.WriteString(headingStyle.Render("Plan") + "\n")
	if t.Plan == nil || len(t.Plan.Steps) == 0 {
		b.WriteString(dimStyle.Render("  (no plan)") + "\n")
	} else {
		for _, s := range t.Plan.Steps {
			fmt.Fprintf(&b, "  %d. %s: %s\n", s.StepIndex, titleStyle.Render(s.AgentName), s.TaskDescription)
		}
	}
	b.WriteString("\n")

	b.WriteString(headingStyle.Render("Step results") + "\n")
	if len(t.StepResults) == 0 {
		b.WriteString(dimStyle.Render("  (none)") + "\n")
	}
	for _, sr := range t.StepResults {
		latency := "-"
		if sr.LatencyMs != nil {
			latency = fmt.Sprintf("%dms", *sr.LatencyMs)
		}
		fmt.Fprintf(&b, "  %d. %s %s %s\n", sr.StepIndex, titleStyle.Render(sr.AgentName),
			styleForStatus(string(sr.Status)).Render(string(sr.Status)), dimStyle.Render(latency))
		for _, line := range strings.Split(sr.OutputText(), "\n") {
			b.WriteString("     " + detailStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n")

	switch {
	case r.FinalAnswer != nil && *r.FinalAnswer != "":
		b.WriteString(headingStyle.Render("Answer") + "\n")
		b.WriteString(answerStyle.Render(*r.FinalAnswer) + "\n")
	case t.InProgress():
		b.WriteString(statusRunning.Render("Still running.") + "\n")
	}
	if r.ErrorMessage != nil && *r.ErrorMessage != "" {
		b.WriteString(statusFailed.Render("Error: ") + *r.ErrorMessage + "\n")
	}
	return b.String()
}

// renderList formats one page of requests, one per line.
func renderList(l *orchestrator.RequestList) string {
	if len(l.Data) == 0 {
		return dimStyle.Render("no requests") + "\n"
	}
	var b strings.Builder
	for _, r := range l.Data {
		fmt.Fprintf(&b, "%s  %s  %-9s  %s\n",
			r.ID,
			dimStyle.Render(r.CreatedAt.Format("2006-01-02 15:04:05")),
			styleForStatus(string(r.Status)).Render(string(r.Status)),
			truncate(r.Query, 60))
	}
	if l.HasMore {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render("more: --after "+l.LastID))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
