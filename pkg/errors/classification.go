package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCategory groups errors by the taxonomy the coordinator reasons about
// when deciding whether to retry a pass or surface a problem.
type ErrorCategory string

const (
	// CategoryTransientExternal covers adapter failures (repository, runner,
	// registry, bus) that are expected to clear on their own: network blips,
	// unavailable dependencies, request timeouts.
	CategoryTransientExternal ErrorCategory = "transient_external"
	// CategoryRunnerExecution covers a runner rejecting or failing a
	// start/abort/status request for reasons intrinsic to the job itself.
	CategoryRunnerExecution ErrorCategory = "runner_execution"
	// CategoryProtocolMalformed covers malformed wire data: an ack record
	// missing required fields, a spec payload that fails to decode.
	CategoryProtocolMalformed ErrorCategory = "protocol_malformed"
	// CategoryInvariantViolation covers state the coordinator's own
	// invariants say should never occur (e.g. two non-terminal jobs for the
	// same key surviving a reconcile pass).
	CategoryInvariantViolation ErrorCategory = "invariant_violation"
	CategoryConfiguration      ErrorCategory = "configuration"
	CategoryNotFound           ErrorCategory = "not_found"
	CategoryTimeout            ErrorCategory = "timeout"
	CategoryUnknown            ErrorCategory = "unknown"
)

// ErrorSeverity tells us how serious an error is.
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// ClassifiedError is a regular error with the extra bookkeeping the
// reconcile/propagate loops use to decide whether to retry on the next pass.
type ClassifiedError struct {
	Err       error
	Category  ErrorCategory
	Severity  ErrorSeverity
	Retryable bool
	UserMsg   string
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ClassifyError automatically classifies an error based on its type and content
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case IsRepositoryError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTransientExternal,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Repository operation failed; will retry on the next pass.",
		}

	case IsRunnerError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryRunnerExecution,
			Severity:  SeverityHigh,
			Retryable: true,
			UserMsg:   "Runner rejected the request.",
		}

	case IsRegistryError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTransientExternal,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Spec registry unreachable; will retry on the next pass.",
		}

	case IsBusError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTransientExternal,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Message bus operation failed; will retry on the next pass.",
		}

	case errors.Is(err, ErrAckMalformed), errors.Is(err, ErrRegistryMalformed):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryProtocolMalformed,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "Received malformed data; discarding rather than retrying.",
		}

	case IsConfigError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryConfiguration,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "Configuration error. Please check your configuration settings.",
		}

	case IsTimeoutError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTimeout,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Operation timed out. Will retry.",
		}

	case IsNotFoundError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryNotFound,
			Severity:  SeverityLow,
			Retryable: false,
			UserMsg:   "Requested resource not found.",
		}

	case IsPermissionError(err):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTransientExternal,
			Severity:  SeverityHigh,
			Retryable: false,
			UserMsg:   "Permission denied. Please check your access rights.",
		}

	case errors.Is(err, context.Canceled):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTimeout,
			Severity:  SeverityLow,
			Retryable: false,
			UserMsg:   "Operation was canceled.",
		}

	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryTimeout,
			Severity:  SeverityMedium,
			Retryable: true,
			UserMsg:   "Operation timed out. Will retry.",
		}

	default:
		return &ClassifiedError{
			Err:       err,
			Category:  CategoryUnknown,
			Severity:  SeverityMedium,
			Retryable: false,
			UserMsg:   "An unexpected error occurred.",
		}
	}
}

// ShouldRetry determines if an operation should be retried based on the error
func ShouldRetry(err error) bool {
	classified := ClassifyError(err)
	if classified == nil {
		return false
	}
	return classified.Retryable
}

// GetSeverity tells you how serious an error is.
func GetSeverity(err error) ErrorSeverity {
	classified := ClassifyError(err)
	if classified == nil {
		return SeverityLow
	}
	return classified.Severity
}

// GetCategory figures out what type of error we're dealing with.
func GetCategory(err error) ErrorCategory {
	classified := ClassifyError(err)
	if classified == nil {
		return CategoryUnknown
	}
	return classified.Category
}

// GetUserMessage gets a user-facing message for err.
func GetUserMessage(err error) string {
	classified := ClassifyError(err)
	if classified == nil {
		return "An error occurred."
	}
	return classified.UserMsg
}

// IsRetryable checks if we should give this error another shot.
func IsRetryable(err error) bool {
	return ShouldRetry(err)
}

// IsCritical checks if an error is critical severity
func IsCritical(err error) bool {
	return GetSeverity(err) == SeverityCritical
}

// NewInvariantViolation marks err as a violation of one of the coordinator's
// own invariants - these should never be retried silently, they indicate a
// bug in the reconcile or propagate logic.
func NewInvariantViolation(err error) *ClassifiedError {
	return &ClassifiedError{
		Err:       err,
		Category:  CategoryInvariantViolation,
		Severity:  SeverityCritical,
		Retryable: false,
		UserMsg:   "Internal invariant violated.",
	}
}

// FormatErrorForLogging formats an error for structured logging
func FormatErrorForLogging(err error) map[string]interface{} {
	if err == nil {
		return nil
	}

	classified := ClassifyError(err)
	result := map[string]interface{}{
		"error":     err.Error(),
		"category":  string(classified.Category),
		"severity":  string(classified.Severity),
		"retryable": classified.Retryable,
	}

	if jobID, ok := GetJobID(err); ok {
		result["job_id"] = jobID
	}
	if runner, ok := GetRunner(err); ok {
		result["runner"] = runner
	}

	return result
}

// LogError logs an error with appropriate context and classification
func LogError(logger interface{ Error(string, ...interface{}) }, err error, msg string) {
	if err == nil {
		return
	}

	logData := FormatErrorForLogging(err)
	args := make([]interface{}, 0, len(logData)*2)
	for k, v := range logData {
		args = append(args, k, v)
	}

	logger.Error(msg, args...)
}

// WrapWithUserMessage wraps an error with a user-friendly message while
// preserving the original error for errors.Is/As.
func WrapWithUserMessage(err error, userMsg string) error {
	if err == nil {
		return nil
	}

	classified := ClassifyError(err)
	classified.UserMsg = userMsg
	return fmt.Errorf("%s: %w", userMsg, classified)
}
