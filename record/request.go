package record

import (
	"fmt"
	"strings"
)

// Assertion is a single import assertion, e.g. `type: "json"`.
type Assertion struct {
	Key   string
	Value string
}

// ModuleRequest identifies a requested module by specifier plus assertions.
// Requests are immutable once built.
type ModuleRequest struct {
	Specifier  string
	Assertions []Assertion
}

// NewModuleRequest creates a request, copying the assertions.
func NewModuleRequest(specifier string, assertions ...Assertion) *ModuleRequest {
	req := &ModuleRequest{Specifier: specifier}
	if len(assertions) > 0 {
		req.Assertions = append([]Assertion(nil), assertions...)
	}
	return req
}

// Assertion returns the value asserted for key.
func (r *ModuleRequest) Assertion(key string) (string, bool) {
	for _, a := range r.Assertions {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func (r *ModuleRequest) String() string {
	if len(r.Assertions) == 0 {
		return fmt.Sprintf("%q", r.Specifier)
	}
	parts := make([]string, len(r.Assertions))
	for i, a := range r.Assertions {
		parts[i] = fmt.Sprintf("%s: %q", a.Key, a.Value)
	}
	return fmt.Sprintf("%q with {%s}", r.Specifier, strings.Join(parts, ", "))
}

// Location is a source position, 1-based. The zero value means unknown.
type Location struct {
	Line   uint32
	Column uint32
}

func (l Location) String() string {
	if l.Line == 0 {
		return "?"
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// RequestedModule is one entry of a record's deduplicated request list.
type RequestedModule struct {
	Request  *ModuleRequest
	Location Location
}
