// Package tui provides a live terminal view of a running loop: a spinner,
// the current iteration, and a scrollback of finished iterations.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ralphloop/internal/loop"
)

// Message types for TUI updates
type (
	loopStartedMsg    struct{ MaxIterations int }
	iterationStartMsg struct{ Iteration, MaxIterations int }
	iterationEndMsg   struct{ Result loop.IterationResult }
	loopEndMsg        struct{ Summary *loop.RunSummary }
	loopErrorMsg      struct{ Err error }
	durationTickMsg   struct{}
)

// Observer implements loop.ProgressObserver and forwards events to the TUI.
type Observer struct {
	loop.NoopObserver
	program *tea.Program
}

var _ loop.ProgressObserver = (*Observer)(nil)

func (o *Observer) OnLoopStart(maxIterations int) {
	if o.program != nil {
		o.program.Send(loopStartedMsg{MaxIterations: maxIterations})
	}
}

func (o *Observer) OnIterationStart(iteration, maxIterations int) {
	if o.program != nil {
		o.program.Send(iterationStartMsg{Iteration: iteration, MaxIterations: maxIterations})
	}
}

func (o *Observer) OnIterationComplete(result loop.IterationResult) {
	if o.program != nil {
		o.program.Send(iterationEndMsg{Result: result})
	}
}

func (o *Observer) OnLoopEnd(summary *loop.RunSummary) {
	if o.program != nil {
		o.program.Send(loopEndMsg{Summary: summary})
	}
}

// Model is the Bubble Tea model for the live loop view.
type Model struct {
	styles  loop.Styles
	spinner spinner.Model

	iteration int
	maxIter   int
	history   []loop.IterationResult

	loopStarted bool
	loopDone    bool
	summary     *loop.RunSummary
	err         error

	loopStart time.Time
	elapsed   time.Duration

	width  int
	height int

	cancel context.CancelFunc
}

var _ tea.Model = (*Model)(nil)

// NewModel creates a TUI model for a loop capped at maxIterations.
func NewModel(maxIterations int) *Model {
	if maxIterations <= 0 {
		maxIterations = loop.DefaultMaxIterations
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(loop.ColorPrimary))
	return &Model{
		styles:  loop.DefaultStyles(),
		spinner: sp,
		maxIter: maxIterations,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			if m.loopDone {
				return m, tea.Quit
			}
			// The loop notices cancellation and sends loopEndMsg; quitting
			// then keeps the final summary on screen until exit.
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loopStartedMsg:
		m.loopStarted = true
		m.maxIter = msg.MaxIterations
		m.loopStart = time.Now()

	case iterationStartMsg:
		m.iteration = msg.Iteration
		m.maxIter = msg.MaxIterations

	case iterationEndMsg:
		m.history = append(m.history, msg.Result)

	case durationTickMsg:
		if m.loopStarted && !m.loopDone {
			m.elapsed = time.Since(m.loopStart)
		}

	case loopEndMsg:
		m.loopDone = true
		m.summary = msg.Summary
		return m, tea.Quit

	case loopErrorMsg:
		m.loopDone = true
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("ralphloop"))
	b.WriteString("\n\n")

	for _, r := range m.history {
		icon := m.styles.Muted.Render("·")
		switch {
		case r.CompletionDetected:
			icon = m.styles.Success.Render(loop.IconCompleted)
		case r.ExitCode != 0:
			icon = m.styles.Error.Render(loop.IconFailed)
		}
		session := r.SessionID
		if session == "" {
			session = "(no session id)"
		}
		b.WriteString(fmt.Sprintf("  %s [%d/%d] %s %s\n",
			icon, r.Iteration, m.maxIter, session,
			m.styles.Duration.Render(r.Duration.Round(time.Second).String())))
	}

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("  error: " + m.err.Error()))
		b.WriteString("\n")
	case m.loopDone && m.summary != nil:
		b.WriteString(fmt.Sprintf("  %s %s after %d iteration(s)\n",
			m.styles.StateStyle(m.summary.State).Render(loop.StateIcon(m.summary.State)),
			m.summary.State, m.summary.Iterations))
	case m.loopStarted:
		b.WriteString(fmt.Sprintf("  %s iteration %d/%d %s\n",
			m.spinner.View(), m.iteration, m.maxIter,
			m.styles.Muted.Render(m.elapsed.Round(time.Second).String())))
	default:
		b.WriteString(fmt.Sprintf("  %s starting\n", m.spinner.View()))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("  q to cancel"))
	b.WriteString("\n")
	return b.String()
}

// Run drives the loop with a live view attached. The loop's own writer
// output is suppressed in favor of the view; the final summary is returned
// just like loop.Run. If additionalObserver is non-nil it receives the same
// callbacks as the view.
func Run(ctx context.Context, cfg loop.Config, additionalObserver loop.ProgressObserver) (*loop.RunSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewModel(cfg.MaxIterations)
	m.cancel = cancel

	p := tea.NewProgram(m, tea.WithAltScreen())

	tuiObserver := &Observer{program: p}
	cfg.Observer = loop.NewMultiObserver(tuiObserver, additionalObserver)
	cfg.Output = io.Discard

	var (
		summary *loop.RunSummary
		loopErr error
	)
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ticker.C:
					p.Send(durationTickMsg{})
				case <-ctx.Done():
					return
				}
			}
		}()

		summary, loopErr = loop.Run(ctx, cfg)
		if loopErr != nil {
			p.Send(loopErrorMsg{Err: loopErr})
			return
		}
		// The observer already sent loopEndMsg; this is a fallback in case
		// the loop returned without firing OnLoopEnd.
		p.Send(loopEndMsg{Summary: summary})
	}()

	if _, err := p.Run(); err != nil {
		return nil, fmt.Errorf("running loop view: %w", err)
	}
	if loopErr != nil {
		return nil, loopErr
	}
	return summary, nil
}
