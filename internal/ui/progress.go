package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/hitscan/internal/tasks"
)

const maxBarWidth = 60

// RunFunc performs a collection run, sending updates to progress. It must not close progress.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.CollectResult, error)

// ProgressModel shows a spinner and progress bar while a [RunFunc] executes.
type ProgressModel struct {
	ctx          context.Context
	cancel       context.CancelFunc
	title        string
	run          RunFunc
	progressChan chan tasks.ProgressUpdate
	progress     tasks.ProgressUpdate
	spinner      spinner.Model
	bar          progress.Model
	result       *tasks.CollectResult
	err          error
	done         bool
	canceled     bool
	help         help.Model
	keys         keyMap
}

// NewProgressModel creates a model that starts run on [ProgressModel.Init].
func NewProgressModel(ctx context.Context, title string, run RunFunc) *ProgressModel {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = NewStyle("#1DB954")

	return &ProgressModel{
		ctx:     ctx,
		cancel:  cancel,
		title:   title,
		run:     run,
		spinner: s,
		bar:     progress.New(progress.WithGradient("#04B575", "#1DB954"), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the run and the spinner.
func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

// Update handles progress, completion, key and animation messages.
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-4, maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) && !m.canceled {
			m.canceled = true
			m.cancel()
		}
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, tea.Batch(m.bar.SetPercent(m.percent()), m.waitForProgress())

	case collectDoneMsg:
		m.result, m.err = msg.result, msg.err
		m.done = true
		m.cancel()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		if b, ok := bar.(progress.Model); ok {
			m.bar = b
		}
		return m, cmd
	}
	return m, nil
}

// View renders the current phase. It is empty once the run is done so the summary prints cleanly.
func (m *ProgressModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title(m.title))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), phaseLabel(m.progress))
	if m.progress.Message != "" {
		b.WriteString(Styles.Help(m.progress.Message))
		b.WriteString("\n")
	}
	b.WriteString(m.bar.View())
	b.WriteString("\n\n")
	if m.canceled {
		b.WriteString(Styles.Warn("Canceling..."))
	} else {
		b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	}
	return b.String()
}

// Result returns the outcome of the run once the program has exited.
func (m *ProgressModel) Result() (*tasks.CollectResult, error) {
	return m.result, m.err
}

func (m *ProgressModel) percent() float64 {
	if m.progress.Total <= 0 {
		return 0
	}
	return float64(m.progress.Step) / float64(m.progress.Total)
}

func (m *ProgressModel) start() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)

	go func() {
		result, err := m.run(m.ctx, m.progressChan)
		m.result = result
		m.err = err
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *ProgressModel) waitForProgress() tea.Cmd {
	ch := m.progressChan
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return collectDoneMsg{result: m.result, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}

func phaseLabel(u tasks.ProgressUpdate) string {
	switch u.Phase {
	case tasks.FetchReleases:
		return fmt.Sprintf("Fetching new releases (%d/%d)", u.Step, u.Total)
	case tasks.FetchTracks:
		return fmt.Sprintf("Fetching album tracks (%d/%d)", u.Step, u.Total)
	case tasks.FetchFeatured:
		return fmt.Sprintf("Scanning featured playlists (%d/%d)", u.Step, u.Total)
	case tasks.ClassifyRows:
		return "Labeling hit candidates..."
	case tasks.PersistRows:
		return fmt.Sprintf("Writing rows (%d/%d)", u.Step, u.Total)
	default:
		return "Working..."
	}
}

// RunProgress runs fn under a [ProgressModel] drawn to out and returns its result.
func RunProgress(ctx context.Context, title string, fn RunFunc, out io.Writer, opts ...tea.ProgramOption) (*tasks.CollectResult, error) {
	m := NewProgressModel(ctx, title, fn)
	opts = append([]tea.ProgramOption{tea.WithOutput(out)}, opts...)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		m.cancel()
		return nil, fmt.Errorf("progress view failed: %w", err)
	}
	return m.Result()
}
