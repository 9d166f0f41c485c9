package users

import "errors"

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email is already taken")
	ErrInvalidCredentials = errors.New("incorrect email or password")

	// ErrCodeNotFound is returned when no user holds a live connection code
	// matching the one presented.
	ErrCodeNotFound = errors.New("connection code not found or expired")

	// ErrCodeTaken is returned by the repository when a generated code
	// collides with another live code.
	ErrCodeTaken = errors.New("connection code already in use")

	ErrSelfConnection     = errors.New("cannot connect with yourself")
	ErrAlreadyConnected   = errors.New("users are already connected")
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrNotConnected is returned when a preference update targets a user
	// that is not in the requester's connection list.
	ErrNotConnected = errors.New("no connection with this user")
)
