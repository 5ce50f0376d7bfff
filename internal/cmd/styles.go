package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vanpelt/livesync/internal/models"
)

// Color scheme
const (
	colorPrimary = "6" // Cyan
	colorSuccess = "2" // Green
	colorWarning = "3" // Yellow
	colorError   = "1" // Red
	colorMuted   = "8" // Dark gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorPrimary)).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorMuted))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorError))

	cellStyle = lipgloss.NewStyle().PaddingRight(2)
)

func stateStyle(state string) lipgloss.Style {
	switch models.ContainerState(state) {
	case models.ContainerStateRunning:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess))
	case models.ContainerStateExited, models.ContainerStateDead:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(colorError))
	case models.ContainerStateRestarting, models.ContainerStatePaused, models.ContainerStateRemoving:
		return lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning))
	default:
		return mutedStyle
	}
}

// renderContainers lays the view out as an aligned table
func renderContainers(resourceID string, containers []models.Container) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("📦 %s (%d containers)", resourceID, len(containers))))
	b.WriteString("\n")

	if len(containers) == 0 {
		b.WriteString(mutedStyle.Render("no containers reported yet"))
		b.WriteString("\n")
		return b.String()
	}

	rows := [][]string{{"NAME", "STATE", "IMAGE", "PORTS", "REASON"}}
	for _, c := range containers {
		ports := make([]string, 0, len(c.Ports))
		for _, p := range c.Ports {
			ports = append(ports, fmt.Sprintf("%d→%d", p.External, p.Internal))
		}
		reason := ""
		if c.Reason != nil {
			reason = *c.Reason
		}
		rows = append(rows, []string{
			c.ID.Name,
			c.StateOrUnknown(),
			c.ImageName + ":" + c.ImageTag,
			strings.Join(ports, ","),
			reason,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			style := cellStyle.Width(widths[i] + 2)
			switch {
			case r == 0:
				style = style.Bold(true)
			case i == 1:
				style = style.Inherit(stateStyle(cell))
			}
			cells[i] = style.Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}
	return b.String()
}
