package domain

import "errors"

// ErrInvalidInvocation is returned by every entity transition whose guard
// rejects the current state. It carries no dynamic context; callers that
// need to report why wrap it with fmt.Errorf("...: %w", ...). The
// dispatcher layer (internal/dispatch) maps it onto the wire-level
// InvalidInvocation error kind.
var ErrInvalidInvocation = errors.New("invalid invocation for current state")
