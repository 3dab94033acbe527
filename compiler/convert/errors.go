package convert

import (
	"fmt"

	"github.com/GrapheneCt/PVR-PSP2-sub008/compiler/input"
)

type (
	// RecursionError is returned when a function transitively calls itself.
	RecursionError struct {
		Label input.Label
	}

	UndefinedLabelError struct {
		Label input.Label
		Line  int
	}

	// MalformedNestingError reports a closing marker without its opener,
	// a construct left open, or a function falling off its end.
	MalformedNestingError struct {
		Op     input.Opcode
		Line   int
		Reason string
	}

	DuplicateDefaultError struct {
		Line int
	}

	DuplicateCaseError struct {
		Value int64
		Line  int
	}

	NonConstantCaseError struct {
		Line int
	}
)

func (e RecursionError) Error() string {
	return fmt.Sprintf("recursive call of label %d", e.Label)
}

func (e UndefinedLabelError) Error() string {
	return fmt.Sprintf("line %d: undefined label %d", e.Line, e.Label)
}

func (e MalformedNestingError) Error() string {
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Op, e.Reason)
}

func (e DuplicateDefaultError) Error() string {
	return fmt.Sprintf("line %d: duplicate DEFAULT", e.Line)
}

func (e DuplicateCaseError) Error() string {
	return fmt.Sprintf("line %d: duplicate CASE %d", e.Line, e.Value)
}

func (e NonConstantCaseError) Error() string {
	return fmt.Sprintf("line %d: CASE value is not a constant", e.Line)
}

func malformed(in *input.Instruction, reason string) error {
	return MalformedNestingError{Op: in.Op, Line: in.Line, Reason: reason}
}
