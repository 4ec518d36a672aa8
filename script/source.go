package script

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/modgraph/errors"
	"github.com/wippyai/modgraph/record"
)

// Source is a decoded script module.
type Source struct {
	Imports []ImportClause `yaml:"imports"`
	Exports []ExportClause `yaml:"exports"`
	Declare Declarations   `yaml:"declare"`
	Body    []Step         `yaml:"body"`
	Async   bool           `yaml:"async"`
}

// ImportClause is one import declaration. With neither Names nor Namespace
// it imports the module for its side effects only.
type ImportClause struct {
	With      map[string]string `yaml:"with"`
	From      string            `yaml:"from"`
	Namespace string            `yaml:"namespace"`
	Names     []string          `yaml:"names"`
	line      int
	column    int
}

func (c *ImportClause) UnmarshalYAML(value *yaml.Node) error {
	type plain ImportClause
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	c.line, c.column = value.Line, value.Column
	return nil
}

// ExportClause is one export declaration. A scalar clause such as
// "a" or "a as b" exports a local binding.
type ExportClause struct {
	With      map[string]string `yaml:"with"`
	Local     string            `yaml:"local"`
	As        string            `yaml:"as"`
	From      string            `yaml:"from"`
	Namespace string            `yaml:"namespace"`
	Names     []string          `yaml:"names"`
	Star      bool              `yaml:"star"`
	line      int
	column    int
}

func (c *ExportClause) UnmarshalYAML(value *yaml.Node) error {
	c.line, c.column = value.Line, value.Column
	if value.Kind == yaml.ScalarNode {
		local, as, err := splitAlias(value.Value)
		if err != nil {
			return err
		}
		c.Local, c.As = local, as
		return nil
	}
	type plain ExportClause
	line, column := c.line, c.column
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	c.line, c.column = line, column
	return nil
}

// Declarations lists top-level bindings by kind.
type Declarations struct {
	Function map[string]FunctionSource `yaml:"function"`
	Var      []string                  `yaml:"var"`
	Let      []string                  `yaml:"let"`
	Const    []string                  `yaml:"const"`
	Class    []string                  `yaml:"class"`
}

// FunctionSource describes a hoisted function. Returns names a binding
// read at call time; otherwise the function returns Value.
type FunctionSource struct {
	Value   any    `yaml:"value"`
	Returns string `yaml:"returns"`
}

func (f *FunctionSource) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return value.Decode(&f.Value)
	}
	type plain FunctionSource
	return value.Decode((*plain)(f))
}

// Step is one body instruction. Exactly one field is set.
type Step struct {
	Copy   *CopyStep   `yaml:"copy"`
	Import *ImportStep `yaml:"import"`
	Call   *CallStep   `yaml:"call"`
	Read   string      `yaml:"read"`
	Log    string      `yaml:"log"`
	Throw  string      `yaml:"throw"`
	Await  string      `yaml:"await"`
	Set    Assignments `yaml:"set"`
	Init   Assignments `yaml:"init"`
}

// CopyStep reads From and assigns the value to To.
type CopyStep struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ImportStep is a dynamic import.
type ImportStep struct {
	With map[string]string `yaml:"with"`
	From string            `yaml:"from"`
	Into string            `yaml:"into"`
}

// CallStep invokes a callable binding.
type CallStep struct {
	Fn   string `yaml:"fn"`
	Into string `yaml:"into"`
	Args []any  `yaml:"args"`
}

// Assignment is a single name/value pair.
type Assignment struct {
	Value any
	Name  string
}

// Assignments keeps the document order of a YAML mapping.
type Assignments []Assignment

func (a *Assignments) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of bindings to values", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		var v any
		if err := value.Content[i+1].Decode(&v); err != nil {
			return err
		}
		*a = append(*a, Assignment{Name: value.Content[i].Value, Value: v})
	}
	return nil
}

// Await operands.
const (
	AwaitTick  = "tick"
	AwaitNever = "never"
)

func (s *Step) op() string {
	var ops []string
	if s.Set != nil {
		ops = append(ops, "set")
	}
	if s.Init != nil {
		ops = append(ops, "init")
	}
	if s.Copy != nil {
		ops = append(ops, "copy")
	}
	if s.Read != "" {
		ops = append(ops, "read")
	}
	if s.Log != "" {
		ops = append(ops, "log")
	}
	if s.Throw != "" {
		ops = append(ops, "throw")
	}
	if s.Await != "" {
		ops = append(ops, "await")
	}
	if s.Import != nil {
		ops = append(ops, "import")
	}
	if s.Call != nil {
		ops = append(ops, "call")
	}
	if len(ops) != 1 {
		return strings.Join(ops, "+")
	}
	return ops[0]
}

// Parse decodes a script module.
func Parse(src []byte) (*Source, error) {
	var s Source
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return nil, errors.ParseFailed("script", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Source) validate() error {
	for i := range s.Body {
		step := &s.Body[i]
		switch op := step.op(); op {
		case "set", "init", "read", "log", "throw", "call", "import":
		case "copy":
			if step.Copy.From == "" || step.Copy.To == "" {
				return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("copy needs from and to"))
			}
		case "await":
			if step.Await != AwaitTick && step.Await != AwaitNever {
				return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("unknown await operand %q", step.Await))
			}
			if !s.Async {
				return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("await outside an async module"))
			}
		case "":
			return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("empty step"))
		default:
			return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("step mixes %s", op))
		}
		if step.Import != nil && step.Import.From == "" {
			return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("import needs from"))
		}
		if step.Call != nil && step.Call.Fn == "" {
			return errors.ParseFailed(fmt.Sprintf("step %d", i), fmt.Errorf("call needs fn"))
		}
	}
	for _, c := range s.Imports {
		if c.From == "" {
			return errors.ParseFailed(fmt.Sprintf("import at line %d", c.line), fmt.Errorf("missing from"))
		}
	}
	return nil
}

// splitAlias parses "name" or "name as alias".
func splitAlias(s string) (string, string, error) {
	fields := strings.Fields(s)
	switch {
	case len(fields) == 1:
		return fields[0], fields[0], nil
	case len(fields) == 3 && fields[1] == "as":
		return fields[0], fields[2], nil
	default:
		return "", "", fmt.Errorf("invalid binding clause %q", s)
	}
}

// assertions converts a with-clause into sorted import assertions.
func assertions(with map[string]string) []record.Assertion {
	if len(with) == 0 {
		return nil
	}
	keys := make([]string, 0, len(with))
	for k := range with {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]record.Assertion, 0, len(keys))
	for _, k := range keys {
		out = append(out, record.Assertion{Key: k, Value: with[k]})
	}
	return out
}
