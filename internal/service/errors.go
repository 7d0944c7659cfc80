package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrValidation         = errors.New("validation failed")
	ErrUserExists         = errors.New("user already exists")
	ErrReservedUsername   = errors.New("username is reserved")
	ErrNotFound           = errors.New("not found")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrInsufficientStock  = errors.New("insufficient stock")

	// ErrStaleAccessToken means the presented access token is not the one on
	// record. It never leaves the authenticator.
	ErrStaleAccessToken = errors.New("stale access token")

	ErrBadRedirect = errors.New("unauthorized redirect uri")
)
