package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/repteam/rep/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PickView ViewState = iota
	ConfirmView
	RunView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	view     ViewState
	tasks    []Task
	single   bool
	width    int
	height   int
	picker   list.Model
	selected *Task
	dryRun   bool

	progressChan chan tasks.ProgressUpdate
	doneChan     chan taskOutcome
	progress     tasks.ProgressUpdate
	result       *tasks.TaskResult
	err          error

	spinner spinner.Model
	bar     progress.Model
	help    help.Model
	keys    keyMap
}

func newModel(parent context.Context) *Model {
	ctx, cancel := context.WithCancel(parent)
	return &Model{
		parent:  parent,
		ctx:     ctx,
		cancel:  cancel,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.ok)),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// NewPickerModel creates a model that lets the user pick one of ts to run.
func NewPickerModel(ctx context.Context, ts []Task) *Model {
	m := newModel(ctx)
	m.tasks = ts
	m.view = PickView
	m.picker = list.New(taskItems(ts), list.NewDefaultDelegate(), 0, 0)
	m.picker.Title = "Data Tasks"
	return m
}

// NewRunModel creates a model that runs t immediately.
func NewRunModel(ctx context.Context, t Task, dryRun bool) *Model {
	m := newModel(ctx)
	m.tasks = []Task{t}
	m.single = true
	m.selected = &m.tasks[0]
	m.dryRun = dryRun
	m.view = RunView
	return m
}

// Result returns the outcome of the last run.
func (m *Model) Result() (*tasks.TaskResult, error) { return m.result, m.err }

// State returns the current view state.
func (m *Model) State() ViewState { return m.view }

// Init starts the task in single-task mode; the picker waits for input.
func (m *Model) Init() tea.Cmd {
	if m.view == RunView {
		return m.startTask()
	}
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.picker.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = min(60, max(20, msg.Width-10))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PickView:
			return m.handlePickKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case RunView:
			return m.handleRunKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != RunView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.progress = msg.data.(tasks.ProgressUpdate)
			return m, m.waitForProgress()
		case MsgTaskComplete:
			out := msg.data.(taskOutcome)
			m.result = out.result
			m.err = out.err
			m.progressChan = nil
			m.doneChan = nil
			m.view = ResultView
			return m, nil
		}
	}

	if m.view == PickView {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PickView:
		return fmt.Sprintf("%s\n\n%s", m.picker.View(), m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit}))
	case ConfirmView:
		return m.renderConfirm()
	case RunView:
		return m.renderRun()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePickKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.picker.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.picker.SelectedItem().(taskItem); ok {
			t := item.task
			m.selected = &t
			m.view = ConfirmView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.commit):
		m.dryRun = false
	case key.Matches(msg, m.keys.dryRun):
		m.dryRun = true
	case key.Matches(msg, m.keys.back), msg.String() == "q":
		m.view = PickView
		return m, nil
	default:
		return m, nil
	}
	m.view = RunView
	return m, m.startTask()
}

// handleRunKeys cancels the running task. The view stays until the task returns.
func (m *Model) handleRunKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) || msg.String() == "q" {
		m.cancel()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart) && !m.single:
		m.ctx, m.cancel = context.WithCancel(m.parent)
		m.view = PickView
		m.selected = nil
		m.result = nil
		m.err = nil
		m.progress = tasks.ProgressUpdate{}
	}
	return m, nil
}

func (m *Model) startTask() tea.Cmd {
	progressChan := make(chan tasks.ProgressUpdate, 50)
	doneChan := make(chan taskOutcome, 1)
	m.progressChan = progressChan
	m.doneChan = doneChan

	run, ctx, dryRun := m.selected.Run, m.ctx, m.dryRun
	go func() {
		result, err := run(ctx, tasks.TaskOptions{DryRun: dryRun, Progress: progressChan})
		doneChan <- taskOutcome{result: result, err: err}
	}()

	return tea.Batch(m.spinner.Tick, m.waitForProgress())
}

// waitForProgress reads the next update or the outcome, whichever comes first.
// Updates still buffered when the task returns are dropped.
func (m *Model) waitForProgress() tea.Cmd {
	progressChan, doneChan := m.progressChan, m.doneChan
	return func() tea.Msg {
		select {
		case out := <-doneChan:
			return taskCompleteMsg(out.result, out.err)
		case update := <-progressChan:
			return progressUpdateMsg(update)
		}
	}
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Run '%s'?", m.selected.Name))
	info := m.selected.Description + "\n"
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.commit, m.keys.dryRun, m.keys.back})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderRun() string {
	mode := "commit"
	if m.dryRun {
		mode = "dry run"
	}
	title := styles.title.Render(fmt.Sprintf("Running %s (%s)", m.selected.Name, mode))

	phase := "Starting..."
	if m.progress.Message != "" || m.progress.Total > 0 {
		phase = fmt.Sprintf("%s %s", styles.warn.Render("["+m.progress.Phase.String()+"]"), m.progress.Message)
	}

	var bar string
	if m.progress.Total > 0 {
		bar = fmt.Sprintf("\n%s %d/%d", m.bar.ViewAs(m.progress.Fraction()), m.progress.Step, m.progress.Total)
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})
	return fmt.Sprintf("%s\n%s %s%s\n\n%s", title, m.spinner.View(), phase, bar, helpView)
}

func (m *Model) renderResult() string {
	keys := []key.Binding{m.keys.quit}
	if !m.single {
		keys = []key.Binding{m.keys.restart, m.keys.quit}
	}
	helpView := m.help.ShortHelpView(keys)

	if m.err != nil {
		body := styles.err.Render(fmt.Sprintf("✗ %s failed: %v", m.selected.Name, m.err))
		if m.result != nil {
			body += "\n\n" + RenderTaskResult(m.result)
		}
		return fmt.Sprintf("%s\n\n%s", body, helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}
	return fmt.Sprintf("%s\n\n%s", RenderTaskResult(m.result), helpView)
}
