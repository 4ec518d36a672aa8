package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/modgraph/evaluator"
	"github.com/wippyai/modgraph/linker"
	"github.com/wippyai/modgraph/record"
	"github.com/wippyai/modgraph/runtime"
)

func main() {
	var (
		manifestFile = flag.String("manifest", "", "Path to the graph manifest (YAML)")
		dir          = flag.String("dir", "", "Load modules from a directory instead of a manifest")
		entry        = flag.String("entry", "", "Entry module (defaults to the manifest entry)")
		verbose      = flag.Bool("v", false, "Verbose logging")
		components   = flag.Bool("components", false, "Print strongly connected components")
		interactive  = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *manifestFile == "" && *dir == "" {
		fmt.Fprintln(os.Stderr, "Usage: modgraph -manifest <graph.yaml> [-entry name] [-components] [-v]")
		fmt.Fprintln(os.Stderr, "       modgraph -dir <modules> -entry <name>")
		fmt.Fprintln(os.Stderr, "       modgraph -manifest <graph.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		log, err := zap.NewDevelopment()
		if err == nil {
			linker.SetLogger(log)
			evaluator.SetLogger(log)
			runtime.SetLogger(log)
			defer func() { _ = log.Sync() }()
		}
	}

	rt, root, err := setup(*manifestFile, *dir, *entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.rt.Close(context.Background())

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(rt, root); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	styles := plainStyles()
	if term.IsTerminal(int(os.Stdout.Fd())) {
		styles = colorStyles()
	}
	if err := run(context.Background(), os.Stdout, rt, root, *components, styles); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session is a runtime plus the trace lines its modules emitted.
type session struct {
	rt    *runtime.Runtime
	trace []string
}

func setup(manifestFile, dir, entry string) (*session, string, error) {
	s := &session{}
	opts := runtime.DefaultOptions()
	opts.BaseDir = dir
	opts.Trace = func(specifier, msg string) {
		s.trace = append(s.trace, fmt.Sprintf("[%s] %s", specifier, msg))
	}
	s.rt = runtime.New(opts)

	if manifestFile != "" {
		m, err := loadManifest(manifestFile)
		if err != nil {
			return nil, "", err
		}
		src, err := m.source()
		if err != nil {
			return nil, "", err
		}
		s.rt.AddSource(src)
		if entry == "" {
			entry = m.Entry
		}
	}
	if entry == "" {
		return nil, "", fmt.Errorf("no entry module")
	}
	return s, entry, nil
}

// drainTrace returns the trace lines collected since the last call.
func (s *session) drainTrace() []string {
	out := s.trace
	s.trace = nil
	return out
}

func run(ctx context.Context, w io.Writer, s *session, entry string, components bool, st styles) error {
	p, err := s.rt.Import(ctx, entry)
	if err != nil {
		return fmt.Errorf("import %s: %w", entry, err)
	}
	jobs, err := s.rt.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}

	for _, line := range s.drainTrace() {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%s %s: %s (%d jobs)\n", st.title.Render("Module graph"), entry, p.State(), jobs)
	if p.Reason() != nil {
		fmt.Fprintln(w, st.err.Render("  error: "+p.Reason().Error()))
	}
	if n := s.rt.Pending(); n > 0 {
		fmt.Fprintf(w, "  %d module(s) still waiting on top-level await\n", n)
	}
	fmt.Fprintln(w)

	for _, m := range s.rt.Modules() {
		writeModule(w, s.rt, m, st)
	}

	if components {
		comps, err := s.rt.Components(entry)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s\n", st.title.Render("Components"))
		for i, c := range comps {
			names := make([]string, len(c))
			for j, m := range c {
				names[j] = m.Specifier
			}
			fmt.Fprintf(w, "  %d: %s\n", i, strings.Join(names, ", "))
		}
	}
	return nil
}

func writeModule(w io.Writer, rt *runtime.Runtime, m *record.Record, st styles) {
	fmt.Fprintf(w, "%s %s\n", st.module.Render(m.Specifier), st.status(m.Status()).Render(m.Status().String()))
	if cr := m.CycleRoot(); cr != nil && cr != m {
		fmt.Fprintf(w, "  cycle root: %s\n", cr.Specifier)
	}
	if err := m.EvaluationError(); err != nil {
		fmt.Fprintln(w, st.err.Render("  error: "+err.Error()))
	}
	if m.Status() < record.StatusLinked {
		return
	}
	ns, err := rt.GetNamespace(m.Specifier)
	if err != nil {
		fmt.Fprintln(w, st.err.Render("  namespace: "+err.Error()))
		return
	}
	for _, line := range namespaceLines(ns) {
		fmt.Fprintln(w, "  "+line)
	}
}

// namespaceLines renders each export as "name = value", or the access
// error for bindings still in their dead zone.
func namespaceLines(ns *record.Namespace) []string {
	values, errs := ns.Snapshot()
	names := make([]string, 0, len(values)+len(errs))
	for name := range values {
		names = append(names, name)
	}
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		if err, ok := errs[name]; ok {
			lines = append(lines, fmt.Sprintf("%s: <%v>", name, err))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s = %s", name, formatValue(values[name])))
	}
	return lines
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case *record.Namespace:
		return "[namespace " + v.Module().Specifier + "]"
	default:
		return fmt.Sprint(v)
	}
}

type styles struct {
	title  lipgloss.Style
	module lipgloss.Style
	err    lipgloss.Style
	ok     lipgloss.Style
	busy   lipgloss.Style
	idle   lipgloss.Style
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{title: s, module: s, err: s, ok: s, busy: s, idle: s}
}

func colorStyles() styles {
	return styles{
		title:  titleStyle,
		module: moduleStyle,
		err:    errorStyle,
		ok:     resultStyle,
		busy:   busyStyle,
		idle:   helpStyle,
	}
}

func (s styles) status(status record.Status) lipgloss.Style {
	switch status {
	case record.StatusEvaluated:
		return s.ok
	case record.StatusEvaluatedError:
		return s.err
	case record.StatusEvaluating, record.StatusEvaluatingAsync:
		return s.busy
	default:
		return s.idle
	}
}
