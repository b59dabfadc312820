package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-wasm/codec/wasmcodec"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	sigStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type exportItem struct {
	name string
	sig  string
	idx  uint32
}

func (e exportItem) Title() string       { return e.name }
func (e exportItem) Description() string { return e.sig }
func (e exportItem) FilterValue() string { return e.name }

type loadedMsg struct {
	err     error
	module  *wasmcodec.Module
	exports []exportItem
}

type dumpModel struct {
	err      error
	module   *wasmcodec.Module
	list     list.Model
	filename string
	ready    bool
}

func newDumpModel(filename string) *dumpModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "exported functions"
	return &dumpModel{filename: filename, list: l}
}

func (m *dumpModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *dumpModel) loadModule() tea.Msg {
	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	mod, err := wasmcodec.DecodeModule(data, wasmcodec.DefaultFeatures())
	if err != nil {
		return loadedMsg{err: err}
	}

	var exports []exportItem
	for _, e := range mod.Exports {
		if e.Kind != wasmcodec.KindFunc {
			continue
		}
		sig := "(unknown signature)"
		if ft := mod.GetFuncType(wasmcodec.FuncId(e.Idx)); ft != nil {
			sig = formatSig(ft)
		}
		exports = append(exports, exportItem{name: e.Name, sig: sig, idx: e.Idx})
	}
	return loadedMsg{module: mod, exports: exports}
}

func formatSig(ft *wasmcodec.FuncType) string {
	var params, results []string
	for _, p := range ft.Params {
		params = append(params, p.String())
	}
	for _, r := range ft.Results {
		results = append(results, r.String())
	}
	return fmt.Sprintf("(%s) -> (%s)", strings.Join(params, ", "), strings.Join(results, ", "))
}

func (m *dumpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		m.ready = true

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.module = msg.module
		items := make([]list.Item, len(msg.exports))
		for i, e := range msg.exports {
			items[i] = e
		}
		m.list.SetItems(items)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *dumpModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("error: %v\n", m.err))
	}
	if !m.ready {
		return "loading...\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(" wasmdump ") + "\n\n")
	b.WriteString(m.list.View())
	b.WriteString("\n" + helpStyle.Render("up/down navigate, q to quit"))
	return b.String()
}

func runInteractive(filename string) error {
	p := tea.NewProgram(newDumpModel(filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
