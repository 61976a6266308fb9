package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFile           = errors.New("empty file")
	ErrInvalidURL          = errors.New("invalid url")
	ErrEmptyBatch          = errors.New("empty batch")
	ErrMissingRange        = errors.New("missing date range")
	ErrNoExtractedData     = errors.New("no extracted data")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrMalformedResponse   = errors.New("malformed service response")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
)

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

// RejectionURLDownloadFailed is the one extraction-service rejection code
// that carries an offending item name, letting the caller mark exactly that
// item failed.
const RejectionURLDownloadFailed = "URL_DOWNLOAD_FAILED"

// BatchRejectedError is a client-error rejection reported by the extraction
// service. The embedded detail object is authoritative.
type BatchRejectedError struct {
	Code     string
	Message  string
	Filename string
}

func (e *BatchRejectedError) Error() string {
	if e == nil {
		return "batch rejected"
	}
	parts := []string{"batch rejected"}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Filename != "" {
		parts = append(parts, "item="+e.Filename)
	}
	return strings.Join(parts, ": ")
}
