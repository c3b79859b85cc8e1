package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidGender          = errors.New("gender must be Female or Male")
	ErrIdentitySpaceExhausted = errors.New("identity space exhausted")
	ErrAuthentication         = errors.New("profile id and key do not match a processed record")
	ErrInvalidSchema          = errors.New("invalid schema mapping")
)

// NotFoundError reports a lookup miss in a named table.
type NotFoundError struct {
	Table string
	Key   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found", e.Table, e.Key)
}

// Is lets errors.Is match any NotFoundError regardless of fields.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	return ok
}

// ErrNotFound is a sentinel usable with errors.Is.
var ErrNotFound = NotFoundError{}
