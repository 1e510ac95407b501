package exceptions

import (
	"context"
	"errors"
	"fmt"
)

type ExportErrorKind string

// ErrPatientMappingConflict is returned by the mapping store when another
// resolver already holds the (tenant, source patient) key.
var ErrPatientMappingConflict = errors.New("patient mapping already exists")

const (
	KindSourceUnavailable       ExportErrorKind = "SourceUnavailable"
	KindSourceNotFound          ExportErrorKind = "SourceNotFound"
	KindSourceAuthExpired       ExportErrorKind = "SourceAuthExpired"
	KindMalformedContent        ExportErrorKind = "MalformedContent"
	KindPatientResolutionFailed ExportErrorKind = "PatientResolutionFailed"
	KindDestinationWriteFailed  ExportErrorKind = "DestinationWriteFailed"
	KindDestinationReadFailed   ExportErrorKind = "DestinationReadFailed"
	KindPublishUnavailable      ExportErrorKind = "PublishUnavailable"
	KindPublishFailedAfterWrite ExportErrorKind = "PublishFailedAfterWrite"
	KindCancelled               ExportErrorKind = "Cancelled"
)

// ExportError is the classified failure of one pipeline step. Transient marks
// failures the owning component may retry under its RetryPolicy.
type ExportError struct {
	Kind      ExportErrorKind
	Step      string
	Transient bool
	Err       error
}

func (e *ExportError) Error() string {
	cause := "unknown cause"
	if e.Err != nil {
		cause = e.Err.Error()
	}
	if e.Step == "" {
		return fmt.Sprintf("%s: %s", e.Kind, cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Step, cause)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

func NewExportError(kind ExportErrorKind, step string, transient bool, err error) *ExportError {
	return &ExportError{Kind: kind, Step: step, Transient: transient, Err: err}
}

var (
	ErrSourceUnavailable = func(step string, err error) *ExportError {
		return NewExportError(KindSourceUnavailable, step, true, err)
	}
	ErrSourceNotFound = func(step string, err error) *ExportError {
		return NewExportError(KindSourceNotFound, step, false, err)
	}
	ErrSourceAuthExpired = func(step string, err error) *ExportError {
		return NewExportError(KindSourceAuthExpired, step, false, err)
	}
	ErrMalformedContent = func(step string, err error) *ExportError {
		return NewExportError(KindMalformedContent, step, false, err)
	}
	ErrPatientResolutionFailed = func(step string, err error) *ExportError {
		return NewExportError(KindPatientResolutionFailed, step, false, err)
	}
	ErrDestinationWriteFailed = func(step string, transient bool, err error) *ExportError {
		return NewExportError(KindDestinationWriteFailed, step, transient, err)
	}
	ErrDestinationReadFailed = func(step string, transient bool, err error) *ExportError {
		return NewExportError(KindDestinationReadFailed, step, transient, err)
	}
	ErrPublishUnavailable = func(err error) *ExportError {
		return NewExportError(KindPublishUnavailable, "publish event", true, err)
	}
	ErrPublishFailedAfterWrite = func(err error) *ExportError {
		return NewExportError(KindPublishFailedAfterWrite, "publish event", false, err)
	}
	ErrCancelled = func(step string, err error) *ExportError {
		return NewExportError(KindCancelled, step, false, err)
	}
)

// KindOf returns the outermost ExportError kind in err's chain, or "" if none.
func KindOf(err error) ExportErrorKind {
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return exportErr.Kind
	}
	return ""
}

func IsKind(err error, kind ExportErrorKind) bool {
	for err != nil {
		var exportErr *ExportError
		if !errors.As(err, &exportErr) {
			return false
		}
		if exportErr.Kind == kind {
			return true
		}
		err = exportErr.Err
	}
	return false
}

// IsTransient reports whether the outermost ExportError is retryable.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return exportErr.Transient
	}
	return false
}

// HasTransientCause reports whether any ExportError in err's chain is
// transient, so a job failed by a wrapped transient cause can be re-run.
func HasTransientCause(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	for err != nil {
		var exportErr *ExportError
		if !errors.As(err, &exportErr) {
			return false
		}
		if exportErr.Transient {
			return true
		}
		err = exportErr.Err
	}
	return false
}
