package wasmmod

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/modgraph/errors"
)

var funcPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// signature is the WIT view of an exported function.
type signature struct {
	params  []wit.Type
	results []wit.Type
}

// parseSignatures extracts function signatures from WIT text.
// Pattern: [export] name: func(params) -> result;
func parseSignatures(witText string) (map[string]*signature, error) {
	sigs := make(map[string]*signature)
	if strings.TrimSpace(witText) == "" {
		return sigs, nil
	}

	for _, match := range funcPattern.FindAllStringSubmatch(witText, -1) {
		name := match[1]
		sig := &signature{}

		for _, p := range splitList(match[2]) {
			typ := p
			if idx := strings.LastIndex(p, ":"); idx != -1 {
				typ = p[idx+1:]
			}
			t, err := parseType(typ)
			if err != nil {
				return nil, err
			}
			sig.params = append(sig.params, t)
		}

		result := strings.TrimSpace(match[3])
		if strings.HasPrefix(result, "(") && strings.HasSuffix(result, ")") {
			result = result[1 : len(result)-1]
		}
		for _, r := range splitList(result) {
			t, err := parseType(r)
			if err != nil {
				return nil, err
			}
			sig.results = append(sig.results, t)
		}

		sigs[name] = sig
	}

	if len(sigs) == 0 {
		return nil, errors.InvalidData(errors.PhaseParse, "", "no functions found in WIT text")
	}
	return sigs, nil
}

// splitList splits a comma separated list, respecting nested parens and
// angle brackets.
func splitList(s string) []string {
	var out []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		case ',':
			if depth == 0 {
				if str := strings.TrimSpace(current.String()); str != "" {
					out = append(out, str)
				}
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}
	if str := strings.TrimSpace(current.String()); str != "" {
		out = append(out, str)
	}
	return out
}

// parseType accepts the scalar WIT types that map onto core wasm values.
func parseType(s string) (wit.Type, error) {
	s = strings.TrimSpace(s)
	t, err := wit.ParseType(s)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidData, err, "parse WIT type "+s)
	}
	switch t.(type) {
	case wit.Bool, wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32,
		wit.S64, wit.U64, wit.F32, wit.F64, wit.Char:
		return t, nil
	}
	return nil, errors.Unsupported(errors.PhaseParse, "WIT type "+s+" has no core wasm representation")
}
