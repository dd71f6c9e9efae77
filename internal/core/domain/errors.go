package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated     = errors.New("not authenticated")
	ErrBanned              = errors.New("account is banned")
	ErrAlreadyLive         = errors.New("broadcast already live")
	ErrNotLive             = errors.New("no live broadcast")
	ErrCooldownActive      = errors.New("broadcast cooldown still active")
	ErrOwnerOnly           = errors.New("action requires owner role")
	ErrOwnerCannotBeBanned = errors.New("owner accounts cannot be banned")
	ErrEmojiNotAllowed     = errors.New("only owners may use emoji in usernames")

	ErrCaptureDenied      = errors.New("capture permission denied")
	ErrCaptureUnavailable = errors.New("capture device unavailable")

	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidInput       = errors.New("invalid input")

	ErrManagerClosed = errors.New("live session manager closed")
)

// StoreError is a failed Session Store operation.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError wraps err unless it is nil.
func NewStoreError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Path: path, Err: err}
}

// IsPolicyViolation reports whether err was a rejected action that caused no side effect.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrCooldownActive) ||
		errors.Is(err, ErrAlreadyLive) ||
		errors.Is(err, ErrNotLive) ||
		errors.Is(err, ErrBanned) ||
		errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrOwnerOnly) ||
		errors.Is(err, ErrOwnerCannotBeBanned) ||
		errors.Is(err, ErrEmojiNotAllowed)
}

// IsCaptureError reports whether err came from acquiring the capture device.
func IsCaptureError(err error) bool {
	return errors.Is(err, ErrCaptureDenied) || errors.Is(err, ErrCaptureUnavailable)
}

// IsStoreError reports whether err came from the Session Store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
