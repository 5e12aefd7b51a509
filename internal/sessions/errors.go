package sessions

import "errors"

var (
	ErrSessionExpired  = errors.New("session expired or inactive")
	ErrSessionNotFound = errors.New("session not found")
)
