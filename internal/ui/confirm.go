package ui

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned when a prompt is needed but stdin is not a
// terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal")

// Prompter asks the operator for confirmations.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, title, description string) (bool, error)
	// Input asks for a line of text.
	Input(ctx context.Context, title, description string) (string, error)
}

// TerminalPrompter prompts with huh forms on the terminal.
type TerminalPrompter struct {
	// Stdin is checked for a terminal before prompting. Nil means os.Stdin.
	Stdin *os.File
}

func (p TerminalPrompter) interactive() bool {
	in := p.Stdin
	if in == nil {
		in = os.Stdin
	}
	return IsTerminal(in)
}

// Confirm implements Prompter.
func (p TerminalPrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	if !p.interactive() {
		return false, ErrNotInteractive
	}
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).RunWithContext(ctx)
	return ok, err
}

// Input implements Prompter.
func (p TerminalPrompter) Input(ctx context.Context, title, description string) (string, error) {
	if !p.interactive() {
		return "", ErrNotInteractive
	}
	var value string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description(description).
				Value(&value),
		),
	).RunWithContext(ctx)
	return value, err
}
