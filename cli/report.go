// ABOUTME: Terminal rendering for sync reports and sync status
// ABOUTME: Lipgloss styles for counts, run state, and failure lists
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/crmsync/models"
)

const maxListedFailures = 10

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Width(12)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// RenderReport formats a finished sync run.
func RenderReport(report models.SyncReport) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Wealthbox sync"))
	s.WriteString("\n\n")

	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label))
		s.WriteString(value)
		s.WriteString("\n")
	}

	row("Run", report.RunID)
	row("State", renderState(report.State))
	row("Total", fmt.Sprintf("%d", report.Total))
	row("Succeeded", okStyle.Render(fmt.Sprintf("%d", report.Succeeded)))
	if report.Failed > 0 {
		row("Failed", errorStyle.Render(fmt.Sprintf("%d", report.Failed)))
	} else {
		row("Failed", "0")
	}
	row("Duration", report.Duration().Round(time.Millisecond).String())

	if len(report.Failures) > 0 {
		s.WriteString("\n")
		for i, f := range report.Failures {
			if i == maxListedFailures {
				s.WriteString(mutedStyle.Render(fmt.Sprintf("... and %d more", len(report.Failures)-maxListedFailures)))
				s.WriteString("\n")
				break
			}
			s.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", f.RemoteID, f.Error)))
			s.WriteString("\n")
		}
	}

	return boxStyle.Render(strings.TrimRight(s.String(), "\n"))
}

func renderState(state models.RunState) string {
	switch state {
	case models.RunSucceeded:
		return okStyle.Render("✓ succeeded")
	case models.RunPartiallyFailed:
		return warnStyle.Render("⚠ partially failed")
	case models.RunFailed:
		return errorStyle.Render("✗ failed")
	case models.RunRunning:
		return warnStyle.Render("⟳ running")
	default:
		return string(state)
	}
}

// RenderStatus formats the sync state row and recent runs.
func RenderStatus(state *models.SyncState, runs []models.SyncRun) string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Sync status"))
	s.WriteString("\n\n")

	switch {
	case state == nil:
		s.WriteString(mutedStyle.Render("Not synced yet. Run 'crmsync sync' to import contacts."))
		s.WriteString("\n")
	case state.Status == models.SyncStatusSyncing:
		s.WriteString(warnStyle.Render("⟳ Syncing..."))
		s.WriteString("\n")
	case state.Status == models.SyncStatusError:
		s.WriteString(errorStyle.Render("✗ Error"))
		if state.ErrorMessage != "" {
			s.WriteString(errorStyle.Render(": " + state.ErrorMessage))
		}
		s.WriteString("\n")
	default:
		s.WriteString(okStyle.Render("✓ Idle"))
		if state.LastSyncTime != nil {
			s.WriteString(mutedStyle.Render(" • Last synced " + state.LastSyncTime.Local().Format("2006-01-02 15:04:05")))
		}
		if state.ErrorMessage != "" {
			s.WriteString(warnStyle.Render(" • " + state.ErrorMessage))
		}
		s.WriteString("\n")
	}

	if len(runs) > 0 {
		s.WriteString("\n")
		for _, run := range runs {
			s.WriteString(fmt.Sprintf("%s  %-20s  %d/%d ok",
				run.StartedAt.Local().Format("2006-01-02 15:04"),
				renderState(run.State),
				run.Succeeded, run.Total))
			if run.Error != "" {
				s.WriteString(errorStyle.Render("  " + run.Error))
			}
			s.WriteString("\n")
		}
	}

	return strings.TrimRight(s.String(), "\n")
}
