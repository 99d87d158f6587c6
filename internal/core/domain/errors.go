package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
	ErrUnknownJobType   = errors.New("unknown job type")
	ErrNoDocumentType   = errors.New("document type not assigned")
)

// Stable codes for error kinds that cross process or API boundaries.
const (
	CodeNotFound       = "not_found"
	CodeInvalidInput   = "invalid_input"
	CodeTemporary      = "temporary"
	CodeUnknownJobType = "unknown_job_type"
	CodeNoDocumentType = "no_document_type"
)

var kindCodes = []struct {
	kind error
	code string
}{
	{ErrUnknownJobType, CodeUnknownJobType},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrDocumentNotFound, CodeNotFound},
	{ErrNoDocumentType, CodeNoDocumentType},
	{ErrTemporary, CodeTemporary},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode returns the code of the first kind err carries, or "" for
// untyped errors.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return kc.code
		}
	}
	return ""
}

// KindFromCode is the inverse of ErrorCode. Unknown codes yield nil.
func KindFromCode(code string) error {
	for _, kc := range kindCodes {
		if kc.code == code {
			return kc.kind
		}
	}
	return nil
}
