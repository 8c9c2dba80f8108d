package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/tui/styles"
)

// Observe returns an observer that forwards progress to the returned channel.
// Updates are dropped while the channel is full; a later one supersedes them.
func Observe(buffer int) (domain.SyncObserver, <-chan domain.SyncProgress) {
	ch := make(chan domain.SyncProgress, max(buffer, 1))
	return domain.ObserverFunc(func(p domain.SyncProgress) {
		select {
		case ch <- p:
		default:
		}
	}), ch
}

// ProgressMsg carries one sync progress update.
type ProgressMsg domain.SyncProgress

// SyncDoneMsg is sent when the sync returns.
type SyncDoneMsg struct {
	Err error
}

type stageState struct {
	done   int
	total  int
	errors int
}

// SyncModel shows a full sync: a spinner and bar for the running stage and a
// summary line for each finished one.
type SyncModel struct {
	updates <-chan domain.SyncProgress
	result  <-chan error
	cancel  func()

	spinner spinner.Model
	bar     progress.Model

	order   []string
	stages  map[string]*stageState
	current string
	message string

	cancelling bool
	finished   bool
	cancelled  bool
	errors     int
	err        error
}

// NewSyncModel follows updates until result delivers the sync's return
// value. cancel is called when the user interrupts.
func NewSyncModel(updates <-chan domain.SyncProgress, result <-chan error, cancel func()) SyncModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = styles.SpinnerStyle

	return SyncModel{
		updates: updates,
		result:  result,
		cancel:  cancel,
		spinner: s,
		bar:     progress.New(progress.WithGradient(styles.ProgressStart, styles.ProgressEnd), progress.WithWidth(40)),
		stages:  make(map[string]*stageState),
	}
}

func (m SyncModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForProgress(m.updates), waitForResult(m.result))
}

func waitForProgress(ch <-chan domain.SyncProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return ProgressMsg(p)
	}
}

func waitForResult(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return SyncDoneMsg{Err: <-ch}
	}
}

func (m SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
			m.message = "cancelling, waiting for running downloads"
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-40, 60))
		return m, nil

	case ProgressMsg:
		cmd := m.apply(domain.SyncProgress(msg))
		return m, tea.Batch(cmd, waitForProgress(m.updates))

	case SyncDoneMsg:
		m.finished = true
		if errors.Is(msg.Err, context.Canceled) {
			m.cancelled = true
		} else {
			m.err = msg.Err
		}
		return m, tea.Quit

	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		m.bar = model.(progress.Model)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply records p. Updates of one stage may arrive out of order, so the
// highest Done wins.
func (m *SyncModel) apply(p domain.SyncProgress) tea.Cmd {
	m.errors = p.Errors
	if p.Finished || p.Cancelled {
		m.cancelled = p.Cancelled
		m.message = p.Message
		return nil
	}

	st, ok := m.stages[p.Stage]
	if !ok {
		st = &stageState{}
		m.stages[p.Stage] = st
		m.order = append(m.order, p.Stage)
	}
	st.total = max(st.total, p.Total)
	st.done = max(st.done, p.Done)
	st.errors = p.Errors
	m.current = p.Stage
	if !m.cancelling {
		m.message = p.Message
	}

	if st.total == 0 {
		return m.bar.SetPercent(0)
	}
	return m.bar.SetPercent(float64(st.done) / float64(st.total))
}

func (m SyncModel) View() string {
	var b strings.Builder
	for _, name := range m.order {
		st := m.stages[name]
		if name == m.current && !m.finished {
			continue
		}
		b.WriteString(styles.SuccessStyle.Render("✓ "))
		b.WriteString(styles.StageStyle.Render(name))
		fmt.Fprintf(&b, " %d/%d\n", st.done, st.total)
	}

	if !m.finished {
		if st, ok := m.stages[m.current]; ok {
			b.WriteString(m.spinner.View())
			b.WriteString(" ")
			b.WriteString(styles.StageStyle.Render(m.current))
			b.WriteString(" ")
			b.WriteString(m.bar.View())
			fmt.Fprintf(&b, " %d/%d\n", st.done, st.total)
		} else {
			b.WriteString(m.spinner.View() + " starting\n")
		}
		if m.message != "" {
			b.WriteString(styles.DimStyle.Render(styles.Truncate(m.message, 70)))
			b.WriteString("\n")
		}
		return b.String()
	}

	b.WriteString(m.Summary())
	b.WriteString("\n")
	return b.String()
}

// Summary describes how the sync ended.
func (m SyncModel) Summary() string {
	switch {
	case m.cancelled:
		return styles.NoteStyle.Render("sync cancelled")
	case m.err != nil:
		return styles.ErrorStyle.Render("sync failed: " + m.err.Error())
	case m.errors > 0:
		return styles.NoteStyle.Render(fmt.Sprintf("sync finished with %d errors", m.errors))
	default:
		return styles.SuccessStyle.Render("sync finished")
	}
}

// Err returns the sync's return value once it has finished.
func (m SyncModel) Err() error {
	return m.err
}
