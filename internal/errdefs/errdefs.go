package errdefs

import "errors"

type ErrorType int

const (
	ErrTypeTagLimitExceeded ErrorType = iota
	ErrTypeNotAuthorized
	ErrTypeUnresolvableEntity
	ErrTypeIndexNotFound
	ErrTypeIndexingFailed
	ErrTypeSearchFailed
	ErrTypeCatalogFailed
	ErrTypeIngestFailed
	ErrTypeWatcherFailed
	ErrTypeInvalidConfig
	ErrTypeFileAccessDenied
)

type CustomError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is matches on Type so callers can compare against the sentinels below
// regardless of message or wrapped cause.
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func NewCustomError(errType ErrorType, message string, err error) error {
	return &CustomError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether any error in err's chain is a CustomError of the given type.
func IsType(err error, errType ErrorType) bool {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}
	return false
}

var (
	ErrTagLimitExceeded   = &CustomError{Type: ErrTypeTagLimitExceeded, Message: "too many tags in query"}
	ErrNotAuthorized      = &CustomError{Type: ErrTypeNotAuthorized, Message: "not authorized"}
	ErrUnresolvableEntity = &CustomError{Type: ErrTypeUnresolvableEntity, Message: "entity not found"}
	ErrIndexNotFound      = &CustomError{Type: ErrTypeIndexNotFound, Message: "index not found"}
	ErrIndexingFailed     = &CustomError{Type: ErrTypeIndexingFailed, Message: "indexing failed"}
	ErrSearchFailed       = &CustomError{Type: ErrTypeSearchFailed, Message: "search failed"}
	ErrCatalogFailed      = &CustomError{Type: ErrTypeCatalogFailed, Message: "catalog failed"}
	ErrIngestFailed       = &CustomError{Type: ErrTypeIngestFailed, Message: "ingest failed"}
	ErrWatcherFailed      = &CustomError{Type: ErrTypeWatcherFailed, Message: "watcher failed"}
	ErrInvalidConfig      = &CustomError{Type: ErrTypeInvalidConfig, Message: "invalid config"}
	ErrFileAccessDenied   = &CustomError{Type: ErrTypeFileAccessDenied, Message: "file access denied"}
)
