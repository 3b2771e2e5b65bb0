// Package ui renders the helper's readiness for the terminal.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/srmooon/vcnarrator/internal/helper"
	"github.com/srmooon/vcnarrator/internal/readiness"
	"github.com/srmooon/vcnarrator/internal/settings"
)

const ellipsis = "…"

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	presentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// Report is everything the status views show.
type Report struct {
	Snapshot readiness.Snapshot
	Layout   helper.Layout
	Provider settings.Provider
	// PID is the helper process started by this command, or 0.
	PID int
}

// stateStyle picks the color for a readiness state.
func stateStyle(s readiness.State) lipgloss.Style {
	switch s {
	case readiness.Ready:
		return presentStyle
	case readiness.NotReady:
		return missingStyle
	default:
		return pendingStyle
	}
}

// Render formats r as a multi-line report no wider than width. A width of
// 0 disables truncation.
func Render(r Report, width int) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("SAPI5 helper"))
	b.WriteString("\n\n")

	status := r.Snapshot.Status
	if status == "" {
		status = r.Snapshot.State.String()
	}
	fmt.Fprintf(&b, "  %s %s\n", faintStyle.Render("status:  "), stateStyle(r.Snapshot.State).Render(status))
	fmt.Fprintf(&b, "  %s %s\n", faintStyle.Render("provider:"), r.Provider)
	if r.PID > 0 {
		fmt.Fprintf(&b, "  %s %d\n", faintStyle.Render("pid:     "), r.PID)
	}
	if r.Snapshot.Err != nil {
		fmt.Fprintf(&b, "  %s %s\n", faintStyle.Render("error:   "), clip(r.Snapshot.Err.Error(), width-12))
	}
	b.WriteString("\n")

	for _, m := range helper.Markers(r.Layout, r.Snapshot.Installed) {
		if m.Present {
			b.WriteString(presentStyle.Render("  ✓ " + m.Name + ": "))
			b.WriteString(clip(m.Path, width-len(m.Name)-6))
			b.WriteString("\n")
			continue
		}
		b.WriteString(missingStyle.Render("  ✗ " + m.Name + ": "))
		b.WriteString("Not installed\n")
		b.WriteString(faintStyle.Render("    " + m.Instructions))
		b.WriteString("\n")
	}

	if voices := r.Snapshot.Voices; len(voices) > 0 {
		names := make([]string, 0, len(voices))
		for _, v := range voices {
			names = append(names, v.Name)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "  %s %s\n",
			faintStyle.Render(fmt.Sprintf("voices (%d):", len(voices))),
			clip(strings.Join(names, ", "), width-16))
	}

	return b.String()
}

// Compact is a one-line summary for the watch view's header.
func Compact(s readiness.Snapshot) string {
	var icon string
	switch s.State {
	case readiness.Ready:
		icon = "●"
	case readiness.NotReady:
		icon = "✗"
	case readiness.Checking:
		icon = "⟳"
	default:
		icon = "○"
	}
	status := s.Status
	if status == "" {
		status = s.State.String()
	}
	return stateStyle(s.State).Render(icon + " " + status)
}

func clip(s string, width int) string {
	if width <= 0 {
		return s
	}
	return truncate.StringWithTail(s, uint(width), ellipsis) //nolint:gosec
}
