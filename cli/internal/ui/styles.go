package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Huddle/cli/internal/peer"
)

// Color palette
var (
	Primary   = lipgloss.Color("#F97316") // Huddle orange
	Secondary = lipgloss.Color("#8B5CF6") // Violet
	Success   = lipgloss.Color("#22C55E")
	Warning   = lipgloss.Color("#EAB308")
	Error     = lipgloss.Color("#EF4444")
	Muted     = lipgloss.Color("#6B7280")
	Surface   = lipgloss.Color("#1F2937")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	ChatUserStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	SelfUserStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)
)

// Layout
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Primary).
			Background(Surface).
			Padding(0, 2)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(Muted)

	SuccessBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(Success).
			Padding(1, 2)
)

// Table cells
var (
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Primary).
				Align(lipgloss.Center)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)

	TableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

const (
	IconSuccess = "✅"
	IconError   = "❌"
	IconWarning = "⚠️"
	IconInfo    = "ℹ️"
	IconRoom    = "🚪"
	IconPeer    = "👤"
	IconMic     = "🎙️"
	IconMuted   = "🔇"
	IconCamera  = "📷"
	IconCamOff  = "🚫"
	IconChat    = "💬"
	IconLink    = "🔗"
	IconCopy    = "📋"
	IconWeb     = "🌐"
)

// StateStyle colors a link state.
func StateStyle(s peer.State) lipgloss.Style {
	switch s {
	case peer.StateConnected:
		return SuccessStyle
	case peer.StateNegotiating:
		return WarningStyle
	case peer.StateFailed:
		return ErrorStyle
	default:
		return MutedStyle
	}
}

func PrintError(msg string) {
	fmt.Printf("%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
