package ui

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the terminal application.
var (
	ColorRed     = lipgloss.Color("#FF0000")
	ColorYellow  = lipgloss.Color("#FFFF00")
	ColorCyan    = lipgloss.Color("#00FFFF")
	ColorGray    = lipgloss.Color("#666666")
	ColorDimGray = lipgloss.Color("#444444")
	ColorWhite   = lipgloss.Color("#FFFFFF")
)

// Base styles reused by the application's views.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorCyan)

	EventBarLabelStyle = lipgloss.NewStyle().
				Foreground(ColorGray)

	EventStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	EventActiveStyle = lipgloss.NewStyle().
				Foreground(ColorCyan).
				Bold(true)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorWhite)

	SelectedStyle = lipgloss.NewStyle().
			Foreground(ColorCyan).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	TimestampStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	SearchPromptStyle = lipgloss.NewStyle().
				Foreground(ColorYellow).
				Bold(true)

	SearchQueryStyle = lipgloss.NewStyle().
				Foreground(ColorYellow)

	DetailLabelStyle = lipgloss.NewStyle().
				Foreground(ColorGray)

	DetailValueStyle = lipgloss.NewStyle().
				Foreground(ColorWhite).
				Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	FooterKeyStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	FooterDescStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	DividerStyle = lipgloss.NewStyle().
			Foreground(ColorDimGray)
)
