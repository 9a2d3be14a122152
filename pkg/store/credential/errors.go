package credential

import "errors"

// StoreError is a domain error returned by credential stores.
//
// Business failures (unknown user, duplicate name) carry a Code so callers
// can branch without string matching. Infrastructure failures are wrapped
// with ErrIOError and keep the cause reachable through Unwrap.
type StoreError struct {
	Code    ErrorCode
	Message string
	Name    string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := e.Message
	if e.Name != "" {
		msg += ": " + e.Name
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrorCode represents the category of a store error.
type ErrorCode int

const (
	// ErrNotFound indicates the user does not exist
	ErrNotFound ErrorCode = iota

	// ErrAlreadyExists indicates the name is taken
	ErrAlreadyExists

	// ErrInvalidArgument indicates an empty or malformed name or password
	ErrInvalidArgument

	// ErrIOError indicates the backend failed
	ErrIOError

	// ErrClosed indicates the store was closed
	ErrClosed
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "I/O error"
	case ErrClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrInvalidCredentials is returned by Authenticator.Verify when the name is
// unknown or the password does not match. The two cases are not
// distinguished.
var ErrInvalidCredentials = errors.New("invalid credentials")

// CodeOf extracts the ErrorCode from err. ok is false for errors that are
// not StoreErrors.
func CodeOf(err error) (code ErrorCode, ok bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsNotFound reports whether err is a StoreError with ErrNotFound.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotFound
}

// IsAlreadyExists reports whether err is a StoreError with ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrAlreadyExists
}
