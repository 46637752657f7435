package entity

import "errors"

var ErrMissingState = errors.New("user state is required")

type InvalidRoleError struct {
	Role Role
}

func (e *InvalidRoleError) Error() string { return "invalid role " + string(e.Role) }
