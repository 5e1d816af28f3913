package permissions

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument indicates malformed caller input rejected before any collaborator call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates the requested permission kind is not in the catalog.
	ErrNotFound = errors.New("not found")
	// ErrMalformedExpression indicates a lexical expression string that does not match the grammar.
	ErrMalformedExpression = errors.New("malformed expression")
)

// UnknownPermissionError reports a submitted permission kind absent from the catalog.
type UnknownPermissionError struct {
	Kind string
}

func (e *UnknownPermissionError) Error() string {
	return fmt.Sprintf("permissions: unknown permission %s", e.Kind)
}

// MissingIncludesError reports includes of a submitted permission that are
// absent from the same submission.
type MissingIncludesError struct {
	Kind    string
	Missing []string
}

func (e *MissingIncludesError) Error() string {
	return fmt.Sprintf("permissions: %s included in permission %s, but missing from submitted permissions",
		strings.Join(e.Missing, ", "), e.Kind)
}
