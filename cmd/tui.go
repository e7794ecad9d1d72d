package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/ui"
)

// runTUI runs engine behind the interactive progress view.
func (r *Runner) runTUI(ctx context.Context, engine ui.Runner) (*models.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewModel(ctx, engine)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	_, err := p.Run()
	cancel()
	model.Wait()
	if err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	report, err := model.Report()
	if report == nil && err == nil {
		return nil, errInterrupted
	}
	return report, err
}

// redirectLogs sends log output to path so it does not interfere with TUI rendering.
func (r *Runner) redirectLogs(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	r.logger.SetOutput(f)
	return func() {
		r.logger.SetOutput(os.Stderr)
		f.Close()
	}, nil
}
