package credentials

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrReusedCredential   = errors.New("credential was used recently")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return "password policy violation: " + e.Reason
}

func NewPolicyViolationError(reason string) *PolicyViolationError {
	return &PolicyViolationError{Reason: reason}
}
