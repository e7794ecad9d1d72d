package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tidex/internal/models"
	"github.com/desertthunder/tidex/internal/tasks"
)

// recentLines is how many finished playlists the run view keeps on screen.
const recentLines = 8

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunView ViewState = iota
	ResultView
)

// Runner runs a sync and reports progress. Implemented by [tasks.Engine].
type Runner interface {
	Run(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.RunReport, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	engine       Runner
	width        int
	height       int
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	doneChan     chan runCompleteMsg
	finished     chan struct{}
	progress     tasks.ProgressUpdate
	recent       []string
	results      list.Model
	report       *models.RunReport
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model that runs engine once.
func NewModel(ctx context.Context, engine Runner) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = NewStyle("#7D56F4")

	return &Model{
		ctx:     ctx,
		view:    RunView,
		engine:  engine,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Report returns the engine's result once the run view has finished.
func (m *Model) Report() (*models.RunReport, error) {
	return m.report, m.err
}

// Wait blocks until a started run has returned. Cancel the run's context first to stop it early.
func (m *Model) Wait() {
	if m.finished != nil {
		<-m.finished
	}
}

// Init starts the sync in the background.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == ResultView {
			m.results.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if m.view == ResultView {
			var cmd tea.Cmd
			m.results, cmd = m.results.Update(msg)
			return m, cmd
		}
		return m, nil

	case spinner.TickMsg:
		if m.view != RunView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		if m.progress.Phase == tasks.PlaylistDone || m.progress.Phase == tasks.PlaylistFailed {
			m.recent = append(m.recent, m.progress.Message)
			if len(m.recent) > recentLines {
				m.recent = m.recent[len(m.recent)-recentLines:]
			}
		}
		return m, m.waitForProgress()

	case runCompleteMsg:
		m.report = msg.report
		m.err = msg.err
		m.progressChan = nil
		m.doneChan = nil
		m.showResults()
		return m, nil
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) startRun() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan runCompleteMsg, 1)
	finished := make(chan struct{})
	m.progressChan, m.doneChan, m.finished = progress, done, finished

	go func() {
		defer close(finished)
		report, err := m.engine.Run(m.ctx, progress)
		done <- runCompleteMsg{report: report, err: err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return nil
		}

		update, ok := <-progress
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) showResults() {
	var items []list.Item
	if m.report != nil {
		items = make([]list.Item, len(m.report.Playlists))
		for i, r := range m.report.Playlists {
			items[i] = resultItem{result: r}
		}
	}

	m.results = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.results.Title = "Playlists"
	m.results.SetShowHelp(false)
	m.results.SetSize(max(m.width-4, 0), max(m.height-8, 0))
	m.view = ResultView
}

func (m *Model) renderRun() string {
	title := styles.title.Render("Syncing TIDAL → Spotify")

	status := m.progress.Message
	if status == "" {
		status = "Starting..."
	}
	if m.progress.Total > 0 {
		status = fmt.Sprintf("%s  %s", status, styles.help.Render(fmt.Sprintf("(%d/%d)", m.progress.Step, m.progress.Total)))
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(m.spinner.View())
	b.WriteString(" ")
	b.WriteString(status)
	b.WriteString("\n")
	if len(m.recent) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(m.recent, "\n"))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.quit})

	if m.err != nil && (m.report == nil || len(m.report.Playlists) == 0) {
		return fmt.Sprintf("%s\n\n%s", styles.error.Render(fmt.Sprintf("Sync failed: %v", m.err)), helpView)
	}

	var header string
	switch {
	case m.err != nil:
		header = styles.error.Render(fmt.Sprintf("Sync aborted: %v", m.err))
	case m.report.Run.PlaylistsFailed > 0:
		header = styles.warning.Render(fmt.Sprintf("Sync finished with %d failed playlists", m.report.Run.PlaylistsFailed))
	default:
		header = styles.success.Render("✓ Sync complete")
	}

	run := m.report.Run
	summary := fmt.Sprintf("Run #%d • %d/%d playlists • +%d tracks • %d blacklisted",
		run.Sequence, run.PlaylistsSynced, run.PlaylistsTotal, run.TracksAdded, run.TracksBlacklisted)

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", header, summary, m.results.View(), helpView)
}
