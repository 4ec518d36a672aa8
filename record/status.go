package record

import "fmt"

// Status is the linking/evaluation state of a record.
// Values are ordered; a record's status only moves forward, except that a
// record left Linking by a failed instantiation returns to Unlinked.
type Status uint8

const (
	StatusUnlinked Status = iota
	StatusLinking
	StatusLinked
	StatusEvaluating
	StatusEvaluatingAsync
	StatusEvaluated
	// StatusEvaluatedError is the sticky error sub-state of Evaluated.
	StatusEvaluatedError
)

var statusNames = [...]string{
	StatusUnlinked:        "unlinked",
	StatusLinking:         "linking",
	StatusLinked:          "linked",
	StatusEvaluating:      "evaluating",
	StatusEvaluatingAsync: "evaluating-async",
	StatusEvaluated:       "evaluated",
	StatusEvaluatedError:  "evaluated-error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// IsEvaluated reports whether s is Evaluated or its error sub-state.
func (s Status) IsEvaluated() bool {
	return s == StatusEvaluated || s == StatusEvaluatedError
}
