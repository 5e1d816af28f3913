package roles

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument indicates a nil or empty required input, rejected
	// before any store or cache call.
	ErrInvalidArgument = errors.New("roles: invalid argument")
	// ErrNotFound indicates the requested role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrDuplicate indicates a uniqueness conflict surfaced by the store.
	ErrDuplicate = errors.New("roles: duplicate")
)

// RolesNotFoundError lists every referenced role id that does not exist at
// the time of an update or delete. Batch callers can correct all ids in
// one pass instead of retrying one by one.
type RolesNotFoundError struct {
	IDs []string
}

func (e *RolesNotFoundError) Error() string {
	return fmt.Sprintf("roles: roles not found: %s", strings.Join(e.IDs, ", "))
}

func (e *RolesNotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
