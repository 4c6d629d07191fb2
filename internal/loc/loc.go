// Package loc carries source locations through every layer of the
// evaluator so diagnostics can always be traced back to a file:line.
package loc

import "fmt"

// Location identifies a line within a parsed makefile (or a synthetic
// origin such as a command-line assignment, which carries an empty File).
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// IsZero reports whether the location carries no file, as for entities
// that never came from a parsed line (automatic variables, builtins).
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0
}
