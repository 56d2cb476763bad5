package auth

import "errors"

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrForbidden    = errors.New("auth: forbidden")
)
