package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"ldlink/internal/linker"
	"ldlink/internal/llog"
	"ldlink/internal/trace"
)

var (
	phaseStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC800"))
	eventStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5080"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#80FF80")).Bold(true)
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <binary>",
		Short: "Link with a live phase-trace TUI",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraceTUI,
	}
}

type phaseMsg string
type eventMsg *trace.Event
type doneMsg struct {
	entry uint64
	err   error
}

type traceModel struct {
	spinner spinner.Model
	phase   string
	events  []string
	entry   uint64
	err     error
	done    bool
}

func newTraceModel() traceModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = phaseStyle
	return traceModel{spinner: s}
}

func (m traceModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m traceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case phaseMsg:
		m.phase = string(msg)
		return m, nil
	case eventMsg:
		e := (*trace.Event)(msg)
		line := fmt.Sprintf("%s %s %s", e.PrimaryTag(), e.Name, e.Detail)
		m.events = append(m.events, line)
		if len(m.events) > 20 {
			m.events = m.events[len(m.events)-20:]
		}
		return m, nil
	case doneMsg:
		m.done = true
		m.entry = msg.entry
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m traceModel) View() string {
	var b string
	if m.done {
		if m.err != nil {
			b += errStyle.Render(fmt.Sprintf("link failed: %v\n", m.err))
		} else {
			b += doneStyle.Render(fmt.Sprintf("entry: 0x%x\n", m.entry))
		}
	} else {
		b += fmt.Sprintf("%s %s\n", m.spinner.View(), phaseStyle.Render(m.phase))
	}
	for _, line := range m.events {
		b += "  " + eventStyle.Render(line) + "\n"
	}
	if !m.done {
		b += "\n(q to quit)\n"
	}
	return b
}

func runTraceTUI(cmd *cobra.Command, args []string) error {
	path := args[0]
	sp := searchPath
	if sp == "" {
		sp = defaultSearchPath()
	}

	log := llog.NewNop()
	lk := linker.New(sp, log)

	p := tea.NewProgram(newTraceModel())

	lk.OnPhase = func(phase string) {
		p.Send(phaseMsg(phase))
	}
	lk.OnEvent = func(e *trace.Event) {
		p.Send(eventMsg(e))
	}

	name := filepath.Base(path)
	go func() {
		if err := lk.Load(name, path); err != nil {
			p.Send(doneMsg{err: err})
			return
		}
		// Give the spinner a beat to render the first phase before any
		// fast-linking small object finishes instantly.
		time.Sleep(10 * time.Millisecond)
		entry, err := lk.Link(name)
		p.Send(doneMsg{entry: entry, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(traceModel); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
