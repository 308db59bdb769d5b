package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/shade/internal/ipc"
)

func renderStatusBar(status *ipc.StatusData, err error, fps float64, width int) string {
	var line string
	if status == nil {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("●")
		line = dot + " daemon not running"
		if err != nil {
			line += "  " + lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(err.Error())
		}
	} else {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
		parts := []string{
			dot + " shade",
			fmt.Sprintf("%dx%d", status.ScreenWidth, status.ScreenHeight),
			fmt.Sprintf("windows:%d/%d", status.MappedWindows, status.TrackedWindows),
			fmt.Sprintf("fades:%d", status.ActiveFades),
			fmt.Sprintf("frames:%d (%.1f/s)", status.FramesPainted, fps),
			fmt.Sprintf("errors:%d ignored:%d", status.ProtocolErrors, status.IgnoredErrors),
			fmt.Sprintf("up:%ds", status.UptimeSeconds),
		}
		line = strings.Join(parts, "  ")
	}

	style := lipgloss.NewStyle().
		Width(width).
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("250")).
		Padding(0, 1)
	return style.Render(line)
}

func renderHelpBar(message string, width int) string {
	help := "r: reload config  p: repaint  j/k: scroll  q/ctrl-c: quit"
	if message != "" {
		help = message + "  |  " + help
	}
	style := lipgloss.NewStyle().
		Width(width).
		Foreground(lipgloss.Color("241")).
		Padding(0, 1)
	return style.Render(help)
}
