package sim

import "fmt"

// Op names the Builder operation that failed, for structured error
// inspection independent of the message text.
type Op string

const (
	OpNoGraph         Op = "no_graph"
	OpDuplicateNode   Op = "duplicate_node"
	OpMissingFirmware Op = "missing_firmware"
)

// BuildError reports a problem assembling a Simulator from a Builder.
type BuildError struct {
	Op      Op
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sim: %s", e.Op)
	}
	return fmt.Sprintf("sim: %s: %s", e.Op, e.Message)
}

func (e *BuildError) Unwrap() error { return e.Cause }

// Is reports whether target is a *BuildError with the same Op, regardless
// of Message or Cause — allowing callers to match on failure category via
// errors.Is(err, &BuildError{Op: OpNoGraph}).
func (e *BuildError) Is(target error) bool {
	t, ok := target.(*BuildError)
	if !ok {
		return false
	}
	return t.Op == e.Op
}
