package services

import (
	"errors"

	"github.com/geocoder89/learnhub/internal/domain/module"
)

var (
	ErrDuplicateAccount = errors.New("user already exists")
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("not authorized")
	// ErrPasswordTooLong covers passwords bcrypt cannot hash (over 72 bytes).
	ErrPasswordTooLong = errors.New("password too long")
	ErrNotFound        = module.ErrNotFound
)
