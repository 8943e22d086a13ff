package graph

import (
	"fmt"

	"github.com/janssen70/lowlatency-live/internal/element"
)

// ElementUnavailableError reports that an element for the given role could
// not be instantiated at build time. Fatal: no graph is created.
type ElementUnavailableError struct {
	Role element.Role
	Err  error
}

func (e *ElementUnavailableError) Error() string {
	return fmt.Sprintf("graph: element unavailable for role %s: %v", e.Role, e.Err)
}

func (e *ElementUnavailableError) Unwrap() error { return e.Err }

// LinkRejectedError reports a topologically invalid static link (port kind
// mismatch or missing port). Fatal: no graph is created.
type LinkRejectedError struct {
	From string
	To   string
	Err  error
}

func (e *LinkRejectedError) Error() string {
	return fmt.Sprintf("graph: link rejected %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *LinkRejectedError) Unwrap() error { return e.Err }
