package secrets

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("content is required")
	ErrNotFound      = errors.New("secret not found")
	ErrWrongPassword = errors.New("incorrect password")
	ErrExhausted     = errors.New("secret destroyed after too many failed attempts")
	ErrUnauthorized  = errors.New("invalid admin token")
	ErrConflict      = errors.New("secret is being modified concurrently")
)

// WrongPasswordError reports a failed password check that left the secret
// in place with Remaining attempts.
type WrongPasswordError struct {
	Remaining int
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("incorrect password, %d attempts remaining", e.Remaining)
}

func (e *WrongPasswordError) Is(target error) bool {
	return target == ErrWrongPassword
}
