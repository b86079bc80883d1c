package models

import "errors"

// PhotoError is a sentinel error value of the photo data layer
type PhotoError struct {
	Message string
}

func (e PhotoError) Error() string {
	return e.Message
}

// Failure kinds surfaced by the data layer. Boundary code wraps the
// underlying cause with one of these so callers can branch with errors.Is.
var (
	ErrStorageUnavailable = PhotoError{"local storage unavailable"}
	ErrNetworkUnavailable = PhotoError{"network unavailable"}
	ErrUnauthorized       = PhotoError{"unauthorized"}
	ErrServerError        = PhotoError{"server error"}
	ErrNotFound           = PhotoError{"photo not found"}
)

// Validation and usage errors
var (
	ErrEmptyPhotoID      = PhotoError{"photo id cannot be empty"}
	ErrInvalidPhotoID    = PhotoError{"photo id contains invalid characters"}
	ErrMissingCapturedAt = PhotoError{"photo capture time is required"}
	ErrMissingImage      = PhotoError{"photo image is required"}
	ErrInvalidDate       = PhotoError{"date must use the YYYY-MM-DD format"}
	ErrSessionMismatch   = PhotoError{"operation not available in the current session mode"}
	ErrInvalidExtension  = PhotoError{"file extension not allowed"}
	ErrFileTooLarge      = PhotoError{"file size exceeds maximum allowed"}
	ErrPathTraversal     = PhotoError{"invalid path - path traversal detected"}
)

var kinds = []PhotoError{
	ErrUnauthorized,
	ErrNotFound,
	ErrNetworkUnavailable,
	ErrServerError,
	ErrStorageUnavailable,
}

// KindOf returns the failure kind carried by err, or nil when err is not
// one of the data layer failure kinds.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short label for the failure kind of err, used for
// metrics and log fields.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrUnauthorized:
		return "unauthorized"
	case ErrNotFound:
		return "not_found"
	case ErrNetworkUnavailable:
		return "network_unavailable"
	case ErrServerError:
		return "server_error"
	case ErrStorageUnavailable:
		return "storage_unavailable"
	}
	if err == nil {
		return ""
	}
	return "other"
}
