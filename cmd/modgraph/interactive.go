package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/modgraph"
	"github.com/wippyai/modgraph/promise"
	"github.com/wippyai/modgraph/record"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	moduleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type interactiveModel struct {
	err      error
	s        *session
	entry    string
	result   string
	trace    []string
	modules  []*record.Record
	exports  []string
	input    textinput.Model
	inputs   []textinput.Model
	selected int
	export   int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateModules modelState = iota
	stateDetail
	stateImport
	stateCallArgs
	stateShowResult
)

func newInteractiveModel(s *session, entry string) *interactiveModel {
	return &interactiveModel{
		s:     s,
		entry: entry,
		state: stateModules,
	}
}

type importedMsg struct {
	err    error
	trace  []string
	result string
}

type callResultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.importEntry
}

func (m *interactiveModel) importEntry() tea.Msg {
	ctx := context.Background()
	p, err := m.s.rt.Import(ctx, m.entry)
	if err != nil {
		return importedMsg{err: err}
	}
	return m.settle(ctx, p)
}

func (m *interactiveModel) dynamicImport() tea.Msg {
	ctx := context.Background()
	specifier := strings.TrimSpace(m.input.Value())
	if specifier == "" {
		return importedMsg{err: fmt.Errorf("empty specifier")}
	}
	var referrer *record.Record
	if m.selected < len(m.modules) {
		referrer = m.modules[m.selected]
	}
	return m.settle(ctx, m.s.rt.DynamicImport(ctx, referrer, specifier, nil))
}

// settle drains the queue and describes how p ended up.
func (m *interactiveModel) settle(ctx context.Context, p *promise.Promise) tea.Msg {
	if _, err := m.s.rt.Drain(ctx); err != nil {
		return importedMsg{err: err}
	}
	msg := importedMsg{trace: m.s.drainTrace()}
	switch p.State() {
	case promise.Rejected:
		msg.err = p.Reason()
	case promise.Fulfilled:
		if ns, ok := p.Value().(*record.Namespace); ok {
			msg.result = "namespace of " + ns.Module().Specifier
		} else {
			msg.result = "fulfilled"
		}
	default:
		msg.result = "pending (waiting on top-level await)"
	}
	return msg
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateImport || m.state == stateCallArgs {
			switch msg.String() {
			case "esc":
				if m.state == stateImport {
					m.state = stateModules
				} else {
					m.state = stateDetail
				}
				m.inputs = nil
				return m, nil
			case "enter":
				if m.state == stateImport {
					return m, m.dynamicImport
				}
				return m, m.callExport
			case "tab":
				if len(m.inputs) > 1 {
					m.inputs[m.focusIdx].Blur()
					m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
					m.inputs[m.focusIdx].Focus()
				}
				return m, nil
			}
			break
		}

		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit

		case "up", "k":
			switch m.state {
			case stateModules:
				if m.selected > 0 {
					m.selected--
				}
			case stateDetail:
				if m.export > 0 {
					m.export--
				}
			}

		case "down", "j":
			switch m.state {
			case stateModules:
				if m.selected < len(m.modules)-1 {
					m.selected++
				}
			case stateDetail:
				if m.export < len(m.exports)-1 {
					m.export++
				}
			}

		case "i":
			if m.state == stateModules || m.state == stateDetail {
				m.input = textinput.New()
				m.input.Placeholder = "./other"
				m.input.Prompt = "import(): "
				m.input.Width = 40
				m.input.Focus()
				m.state = stateImport
			}

		case "enter":
			switch m.state {
			case stateModules:
				if m.selected < len(m.modules) {
					m.openDetail()
				}
			case stateDetail:
				return m, m.prepareCall()
			case stateShowResult:
				m.state = stateModules
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateDetail, stateShowResult:
				m.state = stateModules
				m.result = ""
				m.err = nil
			}
		}

	case importedMsg:
		m.trace = append(m.trace, msg.trace...)
		m.modules = m.s.rt.Modules()
		m.result = msg.result
		m.err = msg.err
		if m.state != stateModules {
			m.state = stateShowResult
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	switch m.state {
	case stateImport:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	case stateCallArgs:
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) openDetail() {
	m.exports = nil
	m.export = 0
	if ns, err := m.s.rt.GetNamespace(m.modules[m.selected].Specifier); err == nil {
		m.exports = ns.OwnKeys()
	}
	m.state = stateDetail
}

// exportValue reads the selected export of the selected module.
func (m *interactiveModel) exportValue() (modgraph.Value, error) {
	if m.export >= len(m.exports) {
		return nil, fmt.Errorf("no export selected")
	}
	ns, err := m.s.rt.GetNamespace(m.modules[m.selected].Specifier)
	if err != nil {
		return nil, err
	}
	return ns.Get(m.exports[m.export])
}

// prepareCall opens one argument field per comma separated value; the
// call itself happens on enter.
func (m *interactiveModel) prepareCall() tea.Cmd {
	v, err := m.exportValue()
	if err != nil {
		return func() tea.Msg { return callResultMsg{err: err} }
	}
	if _, ok := v.(modgraph.Callable); !ok {
		return func() tea.Msg { return callResultMsg{result: formatValue(v)} }
	}
	ti := textinput.New()
	ti.Placeholder = "1, 2, \"text\""
	ti.Prompt = "args: "
	ti.Width = 40
	ti.Focus()
	m.inputs = []textinput.Model{ti}
	m.focusIdx = 0
	m.state = stateCallArgs
	return nil
}

func (m *interactiveModel) callExport() tea.Msg {
	v, err := m.exportValue()
	if err != nil {
		return callResultMsg{err: err}
	}
	fn, ok := v.(modgraph.Callable)
	if !ok {
		return callResultMsg{err: fmt.Errorf("%s is not callable", m.exports[m.export])}
	}
	var args []modgraph.Value
	if len(m.inputs) > 0 {
		args = parseArgs(m.inputs[0].Value())
	}
	result, err := fn.Call(context.Background(), args...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatValue(result)}
}

// parseArgs splits a comma separated argument list. Each argument becomes
// an integer, float, boolean or string, in that order of preference.
func parseArgs(line string) []modgraph.Value {
	var args []modgraph.Value
	for _, field := range strings.Split(line, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		args = append(args, convertArg(field))
	}
	return args
}

func convertArg(value string) modgraph.Value {
	if v, err := strconv.ParseInt(value, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(value); err == nil {
		return v
	}
	if s, err := strconv.Unquote(value); err == nil {
		return s
	}
	return value
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Module Graph"))
	b.WriteString("  " + m.entry + "\n\n")

	switch m.state {
	case stateModules:
		if len(m.modules) == 0 && m.err == nil {
			b.WriteString("Loading...\n")
		}
		for i, r := range m.modules {
			line := fmt.Sprintf("%-32s %s", r.Specifier, r.Status())
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + moduleStyle.Render(fmt.Sprintf("%-32s", r.Specifier)) + " " +
					colorStyles().status(r.Status()).Render(r.Status().String()))
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
		}
		if len(m.trace) > 0 {
			b.WriteString("\n")
			start := max(0, len(m.trace)-8)
			for _, line := range m.trace[start:] {
				b.WriteString(helpStyle.Render(line) + "\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter inspect • i import() • q quit"))

	case stateDetail:
		m.writeDetail(&b)
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ export • enter read/call • i import() • esc back"))

	case stateImport:
		b.WriteString(m.input.View() + "\n\n")
		b.WriteString(helpStyle.Render("enter import • esc back"))

	case stateCallArgs:
		fmt.Fprintf(&b, "Calling %s\n\n", moduleStyle.Render(m.exports[m.export]))
		for _, input := range m.inputs {
			b.WriteString(input.View() + "\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) writeDetail(b *strings.Builder) {
	r := m.modules[m.selected]
	fmt.Fprintf(b, "%s %s\n", moduleStyle.Render(r.Specifier), colorStyles().status(r.Status()).Render(r.Status().String()))
	if cr := r.CycleRoot(); cr != nil && cr != r {
		fmt.Fprintf(b, "cycle root: %s\n", cr.Specifier)
	}
	if r.HasTopLevelAwait {
		b.WriteString("top-level await\n")
	}
	if err := r.EvaluationError(); err != nil {
		b.WriteString(errorStyle.Render("error: "+err.Error()) + "\n")
	}

	meta := m.s.rt.ImportMeta(r)
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "import.meta.%s = %s\n", k, valueStyle.Render(formatValue(meta[k])))
	}

	if len(r.RequestedModules) > 0 {
		b.WriteString("\nrequests:\n")
		for _, req := range r.RequestedModules {
			fmt.Fprintf(b, "  %s\n", req.Request)
		}
	}

	b.WriteString("\nexports:\n")
	ns, err := m.s.rt.GetNamespace(r.Specifier)
	if err != nil {
		b.WriteString(errorStyle.Render("  "+err.Error()) + "\n")
		return
	}
	values, errs := ns.Snapshot()
	for i, name := range m.exports {
		line := name + " = " + formatValue(values[name])
		if err, ok := errs[name]; ok {
			line = fmt.Sprintf("%s: <%v>", name, err)
		}
		if i == m.export {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + valueStyle.Render(line) + "\n")
		}
	}
}

func runInteractive(s *session, entry string) error {
	p := tea.NewProgram(newInteractiveModel(s, entry), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
