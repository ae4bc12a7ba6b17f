// Package apperrors provides the structured error type used across the
// engine's components, mirroring the teacher's internal/errors AppError
// pattern (see internal/errors/errors_test.go in the retrieval pack) but
// keyed on the six error kinds spec.md §7 names instead of HTTP status
// codes, since this system exposes no HTTP surface.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the six error kinds spec.md §7 defines, each with its own
// handling policy (drop, retry, roll back and continue, fatal-per-call).
type Kind string

const (
	// KindValidation covers bad grids, bad condition parameters, missing
	// time_change where required. Surfaced to the caller; in the app
	// executor it is caught and recorded as excep_health=ERROR.
	KindValidation Kind = "validation"
	// KindIntegrity covers duplicate reading writes. Caught in the
	// executor, recorded as excep_health=ERROR, transaction rolled back.
	KindIntegrity Kind = "integrity"
	// KindNotFound covers a missing device/application: the offending
	// message or task is dropped with an error log, no retry.
	KindNotFound Kind = "not_found"
	// KindIO covers message-bus disconnects: auto-reconnect via the
	// transport loop, alarm-logged.
	KindIO Kind = "io"
	// KindRestorationBatchOverflow fires after 9 doublings in the
	// synthesizer's batch-extension loop; the current run fails and logs,
	// next tick retries.
	KindRestorationBatchOverflow Kind = "restoration_batch_overflow"
	// KindUnknownAggregation is a programmer error: fatal per call,
	// non-fatal for the process.
	KindUnknownAggregation Kind = "unknown_aggregation"
)

// AppError is the structured error carried across component boundaries.
type AppError struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(" (")
		b.WriteString(e.Details)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf creates an AppError of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *AppError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an AppError of the given kind wrapping an underlying cause.
func Wrap(cause error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an AppError wrapping cause with a formatted message.
func Wrapf(cause error, kind Kind, format string, args ...any) *AppError {
	return Wrap(cause, kind, fmt.Sprintf(format, args...))
}

// WithDetails appends diagnostic detail to the error in place and returns it.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithDetailsf appends formatted diagnostic detail in place.
func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// NewValidationError is the predefined constructor for KindValidation.
func NewValidationError(message string) *AppError { return New(KindValidation, message) }

// NewValidationErrorf formats a KindValidation error.
func NewValidationErrorf(format string, args ...any) *AppError {
	return Newf(KindValidation, format, args...)
}

// NewIntegrityError is the predefined constructor for KindIntegrity,
// reporting the operation that hit a duplicate-key write.
func NewIntegrityError(operation string, cause error) *AppError {
	return Wrapf(cause, KindIntegrity, "duplicate write during %s", operation)
}

// NewNotFoundError is the predefined constructor for KindNotFound.
func NewNotFoundError(what string) *AppError {
	return Newf(KindNotFound, "%s not found", what)
}

// NewIOError is the predefined constructor for KindIO.
func NewIOError(operation string, cause error) *AppError {
	return Wrapf(cause, KindIO, "io failure during %s", operation)
}

// NewRestorationBatchOverflowError reports the synthesizer giving up after
// exceeding the batch-doubling cap (spec.md §4.5, §5).
func NewRestorationBatchOverflowError(datafeedID int64, doublings int) *AppError {
	return Newf(KindRestorationBatchOverflow,
		"datafeed %d: restoration batch overflow after %d doublings", datafeedID, doublings)
}

// NewUnknownAggregationError reports a data type with an aggregation the
// synthesizer's dispatch table does not recognize (§4.5).
func NewUnknownAggregationError(aggregation string) *AppError {
	return Newf(KindUnknownAggregation, "unknown aggregation %q", aggregation)
}

// IsType reports whether err is an *AppError of the given kind.
func IsType(err error, kind Kind) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// GetType returns err's Kind, or KindUnknownAggregation if err is not an
// *AppError (the closest analogue to the teacher's "internal" fallback,
// since this system has no generic internal kind).
func GetType(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknownAggregation
}

// LogFields produces structured fields suitable for a logr.Logger call
// (internal/obslog), mirroring the teacher's errors.LogFields.
func LogFields(err error) map[string]any {
	fields := map[string]any{"error": err.Error()}
	var ae *AppError
	if errors.As(err, &ae) {
		fields["error_kind"] = string(ae.Kind)
		if ae.Details != "" {
			fields["error_details"] = ae.Details
		}
		if ae.Cause != nil {
			fields["underlying_error"] = ae.Cause.Error()
		}
	}
	return fields
}

// Chain combines independent errors encountered during one causal batch
// (per-device, per-application tick, per-updater sweep) into a single
// error without losing any of them, mirroring the teacher's errors.Chain.
// Nil errors are filtered out; a single remaining error is returned as-is;
// zero remaining errors yields nil.
func Chain(errs ...error) error {
	var kept []error
	for _, e := range errs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		msgs := make([]string, len(kept))
		for i, e := range kept {
			msgs[i] = e.Error()
		}
		return errors.New(strings.Join(msgs, " -> "))
	}
}
