package ui

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/repteam/rep/internal/models"
	"github.com/repteam/rep/internal/tasks"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	labelWidth = 14
)

func row(label string, value any) string {
	return rowWidth(labelWidth, label, value)
}

func rowWidth(width int, label string, value any) string {
	return styles.label.Width(width).Render(label) + fmt.Sprint(value)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styles.help).
		StyleFunc(func(r, c int) lipgloss.Style {
			if r == table.HeaderRow {
				return styles.header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// RenderTaskResult renders the counters of a data task run.
func RenderTaskResult(r *tasks.TaskResult) string {
	var title string
	switch {
	case r.Failed > 0:
		title = styles.warn.Render(fmt.Sprintf("! %s finished with failures", r.Name))
	default:
		title = styles.ok.Render(fmt.Sprintf("✓ %s complete", r.Name))
	}
	if r.DryRun {
		title += " " + styles.help.Render("(dry run, nothing committed)")
	}

	// count keys are task-defined and may be longer than the fixed labels
	width := labelWidth
	keys := slices.Sorted(maps.Keys(r.Counts))
	for _, k := range keys {
		width = max(width, lipgloss.Width(k)+2)
	}
	lines := []string{
		rowWidth(width, "Scanned", r.Scanned),
		rowWidth(width, "Changed", r.Changed),
		rowWidth(width, "Skipped", r.Skipped),
		rowWidth(width, "Failed", r.Failed),
		rowWidth(width, "Committed", r.Committed),
	}
	for _, k := range keys {
		lines = append(lines, rowWidth(width, k, r.Counts[k]))
	}
	lines = append(lines, rowWidth(width, "Duration", r.Duration.Round(time.Millisecond)))
	if r.RunID != "" {
		lines = append(lines, rowWidth(width, "Run", r.RunID))
	}

	return title + "\n" + styles.box.Render(strings.Join(lines, "\n"))
}

// RenderRuns renders recorded task runs, newest first as given.
func RenderRuns(runs []*models.TaskRun) string {
	if len(runs) == 0 {
		return styles.help.Render("No task runs recorded.")
	}

	t := newTable("Started", "Task", "Mode", "Status", "Scanned", "Changed", "Skipped", "Failed", "Error")
	for _, r := range runs {
		mode := "commit"
		if r.DryRun() {
			mode = "dry run"
		}
		t.Row(
			r.StartedAt().Local().Format(timeLayout),
			r.Name(),
			mode,
			statusStyle(r.Status()).Render(r.Status()),
			strconv.Itoa(r.Scanned()),
			strconv.Itoa(r.Changed()),
			strconv.Itoa(r.Skipped()),
			strconv.Itoa(r.Failed()),
			truncate(r.ErrorMessage(), 40),
		)
	}
	return t.Render()
}

// RenderHandoffs renders placement handoff reports. Partial handoffs are highlighted since
// they need a manual follow-up.
func RenderHandoffs(reports []*models.HandoffReport) string {
	if len(reports) == 0 {
		return styles.help.Render("No handoffs recorded.")
	}

	t := newTable("Created", "User", "Outcome", "Partial", "Last Step", "CPF Subscription", "Error")
	for _, h := range reports {
		partial := "no"
		if h.Partial() {
			partial = styles.err.Render("YES")
		}
		t.Row(
			h.CreatedAt().Local().Format(timeLayout),
			h.UserID(),
			statusStyle(h.Outcome()).Render(h.Outcome()),
			partial,
			h.LastStep(),
			h.CPFSubscriptionID(),
			truncate(h.ErrorMessage(), 40),
		)
	}
	return t.Render()
}

// RenderHandoff renders the step list of a single handoff.
func RenderHandoff(h *models.HandoffReport) string {
	title := statusStyle(h.Outcome()).Render(fmt.Sprintf("Handoff %s: %s", h.UserID(), h.Outcome()))
	if h.Partial() {
		title += " " + styles.err.Render("(PARTIAL: retainer cancelled, ISA not in place)")
	}

	lines := make([]string, 0, len(h.Steps())+2)
	for _, s := range h.Steps() {
		line := fmt.Sprintf("%-20s %s", s.Name, statusStyle(s.Status).Render(s.Status))
		if s.Error != "" {
			line += "  " + styles.help.Render(s.Error)
		}
		lines = append(lines, line)
	}
	if id := h.CPFSubscriptionID(); id != "" {
		lines = append(lines, "", row("CPF sub", id))
	}
	if len(lines) == 0 {
		lines = append(lines, styles.help.Render("no steps run"))
	}
	return title + "\n" + styles.box.Render(strings.Join(lines, "\n"))
}

// RenderDiagnose renders the model listings and the ping result.
func RenderDiagnose(r *tasks.DiagnoseReport) string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Gemini model diagnostic"))
	b.WriteString("\n")

	for _, l := range r.Listings {
		if l.Error != "" {
			fmt.Fprintf(&b, "%s %s\n", styles.err.Render("✗ "+l.Version), styles.help.Render(fmt.Sprintf("(%d) %s", l.Status, l.Error)))
			continue
		}
		fmt.Fprintf(&b, "%s\n", styles.ok.Render("✓ "+l.Version))
		b.WriteString(row("  2.x", joinOrNone(l.Series2)) + "\n")
		b.WriteString(row("  1.5", joinOrNone(l.Series15)) + "\n")
		b.WriteString(row("  other", joinOrNone(l.Other)) + "\n")
	}

	b.WriteString("\n")
	switch {
	case r.PingOK:
		b.WriteString(styles.ok.Render(fmt.Sprintf("✓ %s on %s answered: %q", r.BestModel, r.BestVersion, r.PingText)))
	case r.BestModel != "":
		b.WriteString(styles.err.Render(fmt.Sprintf("✗ %s on %s failed (%d): %s", r.BestModel, r.BestVersion, r.PingStatus, r.PingError)))
	default:
		b.WriteString(styles.warn.Render("! " + r.PingError))
	}
	return b.String()
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case models.OutcomeCompleted, models.RunSucceeded, models.StepDone:
		return styles.ok
	case models.OutcomeFailed, models.OutcomeAborted: // also RunFailed and StepFailed
		return styles.err
	case models.OutcomeSkipped, models.RunRunning, models.StepPending:
		return styles.warn
	}
	return lipgloss.NewStyle()
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
