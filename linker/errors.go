package linker

import (
	"strings"
)

// Link stages reported by LinkError.
const (
	StageResolve    = "resolve"
	StageInitialize = "initialize"
	StageHoist      = "hoist"
	StageLimit      = "limit"
)

// LinkError provides context when instantiating a module graph fails.
type LinkError struct {
	Cause  error
	Stage  string
	Root   string
	Module string
}

func (e *LinkError) Error() string {
	var b strings.Builder
	b.WriteString("link failed")

	if e.Stage != "" {
		b.WriteString(" at ")
		b.WriteString(e.Stage)
	}

	if e.Root != "" {
		b.WriteString(" (root ")
		b.WriteString(e.Root)
		b.WriteByte(')')
	}

	if e.Module != "" && e.Module != e.Root {
		b.WriteString(": ")
		b.WriteString(e.Module)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *LinkError) Unwrap() error {
	return e.Cause
}

// linkError creates a LinkError for a module; the root is filled in by
// Instantiate.
func linkError(stage, module string, cause error) *LinkError {
	return &LinkError{
		Stage:  stage,
		Module: module,
		Cause:  cause,
	}
}
