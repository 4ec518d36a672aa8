package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve   Phase = "resolve"   // host resolve hook
	PhaseLink      Phase = "link"      // instantiate / environment setup
	PhaseEvaluate  Phase = "evaluate"  // module body execution
	PhaseNamespace Phase = "namespace" // namespace and binding access
	PhaseLoad      Phase = "load"      // source loading
	PhaseParse     Phase = "parse"     // module source compilation
	PhaseHost      Phase = "host"      // host hooks and options
)

// Kind categorizes the error
type Kind string

const (
	KindResolution       Kind = "resolution"
	KindAmbiguousExport  Kind = "ambiguous_export"
	KindUnresolvedExport Kind = "unresolved_export"
	KindUninitialized    Kind = "uninitialized"
	KindEvaluation       Kind = "evaluation"
	KindTerminated       Kind = "terminated"
	KindAllocation       Kind = "allocation"
	KindReadOnly         Kind = "read_only"
	KindInvalidState     Kind = "invalid_state"
	KindNotFound         Kind = "not_found"
	KindUnsupported      Kind = "unsupported"
	KindInvalidData      Kind = "invalid_data"
	KindDuplicate        Kind = "duplicate"
)

// Error is the structured error type used throughout the module graph
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Name   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" in ")
		b.WriteString(e.Module)
	}

	if e.Name != "" {
		b.WriteString(" for ")
		b.WriteString(e.Name)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err or any error it wraps is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Cause
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the module specifier the error belongs to
func (b *Builder) Module(specifier string) *Builder {
	b.err.Module = specifier
	return b
}

// Name sets the binding or export name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Resolution creates an error for a specifier the host could not resolve
func Resolution(referrer, specifier string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindResolution,
		Module: referrer,
		Name:   specifier,
		Detail: fmt.Sprintf("cannot resolve module %q", specifier),
		Cause:  cause,
	}
}

// AmbiguousExport creates an error for a name provided by conflicting star exports
func AmbiguousExport(module, name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindAmbiguousExport,
		Module: module,
		Name:   name,
		Detail: fmt.Sprintf("export %q is ambiguous across star exports", name),
	}
}

// UnresolvedExport creates an error for an import or re-export with no binding
func UnresolvedExport(module, name, from string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindUnresolvedExport,
		Module: module,
		Name:   name,
		Detail: fmt.Sprintf("module %q does not provide an export named %q", from, name),
	}
}

// Uninitialized creates an uninitialized-lexical-access error
func Uninitialized(module, name string) *Error {
	return &Error{
		Phase:  PhaseNamespace,
		Kind:   KindUninitialized,
		Module: module,
		Name:   name,
		Detail: fmt.Sprintf("can't access lexical declaration %q before initialization", name),
	}
}

// ReadOnly creates an error for writes to immutable bindings or namespaces
func ReadOnly(module, name string) *Error {
	return &Error{
		Phase:  PhaseNamespace,
		Kind:   KindReadOnly,
		Module: module,
		Name:   name,
		Detail: fmt.Sprintf("%q is read-only", name),
	}
}

// InvalidState creates an error for an operation attempted in the wrong status
func InvalidState(phase Phase, module, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Module: module,
		Detail: detail,
	}
}

// Terminated creates an error for evaluation aborted by an interrupt
func Terminated(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseEvaluate,
		Kind:   KindTerminated,
		Module: module,
		Detail: "module evaluation terminated",
		Cause:  cause,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("out of memory: %s", what),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, module, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Module: module,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// UnresolvedImport represents a single import that could not be bound
type UnresolvedImport struct {
	Module string // importing module, e.g. "./app.js"
	Name   string // imported or re-exported name
	From   string // specifier it was requested from
}

// UnresolvedImportsError is returned when a module's imports cannot all be bound
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from "module#name@from" keys
func NewUnresolvedImportsError(keys []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Imports: make([]UnresolvedImport, 0, len(keys)),
	}
	for _, key := range keys {
		result.Imports = append(result.Imports, parseImportKey(key))
	}
	return result
}

// ImportKey formats an unresolved import as "module#name@from"
func ImportKey(module, name, from string) string {
	return module + "#" + name + "@" + from
}

func parseImportKey(key string) UnresolvedImport {
	module, rest, found := strings.Cut(key, "#")
	if !found {
		return UnresolvedImport{Module: key}
	}
	name, from, _ := strings.Cut(rest, "@")
	return UnresolvedImport{Module: module, Name: name, From: from}
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] unresolved_export: no imports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%d unresolved import(s):\n", len(e.Imports)))

	// Group by importing module for cleaner output
	byModule := make(map[string][]UnresolvedImport)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byModule[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byModule[imp.Module] = append(byModule[imp.Module], imp)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, imp := range byModule[mod] {
			b.WriteString("    - ")
			b.WriteString(imp.Name)
			if imp.From != "" {
				b.WriteString(" from ")
				b.WriteString(imp.From)
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *UnresolvedImportsError) Is(target error) bool {
	_, ok := target.(*UnresolvedImportsError)
	return ok
}
