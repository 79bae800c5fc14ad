// Package ui holds terminal presentation helpers: styles, tables and
// interactive prompts.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	// Colors
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	okStyle = lipgloss.NewStyle().
		Foreground(colorGreen)

	failStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// Status marks.
const (
	MarkOK   = "[OK]"
	MarkFail = "[!!]"
	MarkSkip = "[--]"
	MarkWarn = "[??]"
)

// Theme renders text with or without terminal styling.
type Theme struct {
	styled bool
}

// Plain is a Theme that never styles.
var Plain = Theme{}

// Styled is a Theme that always styles.
var Styled = Theme{styled: true}

// ThemeFor styles output only when f is a terminal.
func ThemeFor(f *os.File) Theme {
	return Theme{styled: IsTerminal(f)}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (t Theme) render(s lipgloss.Style, text string) string {
	if !t.styled {
		return text
	}
	return s.Render(text)
}

// Title renders a heading.
func (t Theme) Title(text string) string { return t.render(titleStyle, text) }

// Section renders a section heading.
func (t Theme) Section(text string) string { return t.render(sectionStyle, text) }

// OK renders success text.
func (t Theme) OK(text string) string { return t.render(okStyle, text) }

// Fail renders failure text.
func (t Theme) Fail(text string) string { return t.render(failStyle, text) }

// Warn renders warning text.
func (t Theme) Warn(text string) string { return t.render(warnStyle, text) }

// Dim renders secondary text.
func (t Theme) Dim(text string) string { return t.render(dimStyle, text) }
