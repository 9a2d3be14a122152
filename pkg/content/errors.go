package content

import "errors"

var (
	// ErrContentNotFound indicates the requested path does not exist.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrContentNotFound = errors.New("content not found")

	// ErrIsDirectory indicates the path names a directory, which is never
	// served as a body.
	//
	// Protocol Mapping:
	//   - HTTP: 404 Not Found
	ErrIsDirectory = errors.New("content is a directory")

	// ErrPermissionDenied indicates the object exists but may not be served.
	//
	// Protocol Mapping:
	//   - HTTP: 403 Forbidden
	ErrPermissionDenied = errors.New("content permission denied")

	// ErrTooLarge indicates the object exceeds the store's size limit.
	ErrTooLarge = errors.New("content too large")
)
