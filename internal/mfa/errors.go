package mfa

import "errors"

var (
	ErrNotEnabled         = errors.New("mfa not enabled")
	ErrAlreadyEnabled     = errors.New("mfa already enabled")
	ErrEnrollmentNotFound = errors.New("enrollment not found or expired")
	ErrCodeInvalid        = errors.New("invalid verification code")
)
