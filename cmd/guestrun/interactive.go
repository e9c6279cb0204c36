package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/varhub/guestvm/program"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	prog     *program.Program
	mod      *program.ProgramModule
	dir      string
	entry    string
	memoryMB uint64
	result   string
	funcs    []string
	input    textinput.Model
	selected int
	state    modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(dir, entry string, memoryMB uint64) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "[]"
	ti.Prompt = "args (JSON array): "
	ti.Width = 50
	return &interactiveModel{dir: dir, entry: entry, memoryMB: memoryMB, input: ti, state: stateSelectFunc}
}

type loadedMsg struct {
	err   error
	prog  *program.Program
	mod   *program.ProgramModule
	funcs []string
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()

	p, err := program.New(newDirProvider(m.dir), program.Options{MemoryLimitMB: m.memoryMB})
	if err != nil {
		return loadedMsg{err: err}
	}

	mod, err := p.GetModule(ctx, m.entry)
	if err != nil {
		p.Dispose()
		return loadedMsg{err: err}
	}

	keys, err := mod.GetKeysAsync(ctx)
	if err != nil {
		p.Dispose()
		return loadedMsg{err: err}
	}

	var funcs []string
	for _, k := range keys {
		typ, err := mod.GetType(k)
		if err == nil && typ == "function" {
			funcs = append(funcs, k)
		}
	}
	sort.Strings(funcs)

	return loadedMsg{prog: p, mod: mod, funcs: funcs}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.prog != nil {
				m.prog.Dispose()
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					return m, nil
				}
				m.input.SetValue("")
				m.input.Focus()
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.prog = msg.prog
		m.mod = msg.mod
		m.funcs = msg.funcs

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) callFunction() tea.Msg {
	ctx := context.Background()

	raw := m.input.Value()
	if strings.TrimSpace(raw) == "" {
		raw = "[]"
	}
	var args []any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return callResultMsg{err: fmt.Errorf("parse args: %w", err)}
	}

	name := m.funcs[m.selected]
	result, err := m.mod.CallMethod(ctx, name, nil, args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: fmt.Sprintf("%v", result)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)) + "\n"
	}

	if m.prog == nil {
		return "Loading module...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("guestrun"))
	b.WriteString(" ")
	b.WriteString(m.entry)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("No callable exports found.\n")
			break
		}
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			cursor := "  "
			if i == m.selected {
				cursor = "> "
				b.WriteString(selectedStyle.Render(cursor + funcStyle.Render(f)))
			} else {
				b.WriteString(cursor + funcStyle.Render(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("up/down select, enter call, q quit"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(m.funcs[m.selected])))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call, esc back"))

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(m.funcs[m.selected])))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue, q quit"))
	}

	return b.String()
}

func runInteractive(dir, entry string, memoryMB uint64) error {
	p := tea.NewProgram(newInteractiveModel(dir, entry, memoryMB), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
