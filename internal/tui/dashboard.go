// Package tui renders a live dashboard for batch runs.
package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/phonelens/phonelens/internal/core"
)

// Dashboard runs the bubbletea program and receives run events. It can be
// used directly as a result sink.
type Dashboard struct {
	program *tea.Program
	done    chan error
}

// Options configures the terminal the dashboard owns.
type Options struct {
	Input  io.Reader
	Output io.Writer
	// AltScreen switches to the alternate screen buffer.
	AltScreen bool
}

// New builds a dashboard for a run. onStop is invoked when the operator
// presses the stop key.
func New(runID string, total int, onStop func(), opts Options) *Dashboard {
	programOpts := []tea.ProgramOption{}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	if opts.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}

	return &Dashboard{
		program: tea.NewProgram(NewModel(runID, total, onStop), programOpts...),
		done:    make(chan error, 1),
	}
}

// Start runs the program in the background.
func (d *Dashboard) Start() {
	go func() {
		_, err := d.program.Run()
		d.done <- err
	}()
}

func (d *Dashboard) Record(_ context.Context, result *core.CheckResult) error {
	d.program.Send(ResultMsg{Result: result})
	return nil
}

func (d *Dashboard) Flush(_ context.Context, batch int, results []*core.CheckResult) error {
	d.program.Send(FlushMsg{Batch: batch, Count: len(results)})
	return nil
}

// Finish shows the outcome and waits for the program to exit.
func (d *Dashboard) Finish(summary *core.RunSummary, err error) error {
	d.program.Send(DoneMsg{Summary: summary, Err: err})
	return <-d.done
}
