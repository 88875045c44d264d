package harvest

import (
	"errors"
	"fmt"
)

// Domain error codes. Items that fail with one of these end up failed, not
// errored.
const (
	CodeItemNotFound      = "item_not_found"
	CodeHarvestNotFound   = "harvest_not_found"
	CodeUnsupportedFormat = "unsupported_format"
	CodeMetadata          = "metadata_unreadable"
	CodeInvalidSidecar    = "invalid_sidecar"
	CodeInvalidOffset     = "invalid_utc_offset"
	CodeNotHarvestable    = "not_harvestable"
)

// ErrUnsupportedFormat is returned by readers that cannot decode a file.
var ErrUnsupportedFormat = &DomainError{Code: CodeUnsupportedFormat, Message: "audio format is not supported"}

// DomainError is an expected failure of the harvest pipeline. Anything else
// reaching the job is treated as a bug.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches domain errors by code so wrapped sentinels compare equal.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func domainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// IsDomainError reports whether err carries a DomainError anywhere in its chain.
func IsDomainError(err error) bool {
	var d *DomainError
	return errors.As(err, &d)
}
