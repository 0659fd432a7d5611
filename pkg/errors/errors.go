// Package errors provides standardized error handling for the feature-ingestion
// coordinator. It implements structured error types with proper wrapping and
// classification following Go 1.20+ error handling conventions.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// Job-related errors
	ErrJobNotFound       = errors.New("job not found")
	ErrJobAlreadyExists  = errors.New("job already exists")
	ErrJobNotRunning     = errors.New("job is not running")
	ErrJobAlreadyRunning = errors.New("job is already running")
	ErrInvalidJobSpec    = errors.New("invalid job specification")
	ErrJobTimeout        = errors.New("job update timeout")

	// Feature-set related errors
	ErrFeatureSetNotFound    = errors.New("feature set not found")
	ErrInvalidFeatureSetSpec = errors.New("invalid feature set specification")

	// Repository-related errors
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	ErrConcurrentModify      = errors.New("concurrent modification detected")

	// Runner-related errors
	ErrRunnerUnavailable = errors.New("runner unavailable")
	ErrRunnerRejected    = errors.New("runner rejected request")
	ErrUnknownRunnerType = errors.New("unknown runner type")

	// Registry-related errors
	ErrRegistryUnavailable = errors.New("spec registry unavailable")
	ErrRegistryMalformed   = errors.New("spec registry response malformed")

	// Bus-related errors
	ErrBusUnavailable = errors.New("message bus unavailable")
	ErrAckMalformed   = errors.New("ack record malformed")

	// System-related errors
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("operation timed out")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// JobError represents an error related to a specific job
type JobError struct {
	JobID     string
	Operation string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: operation %s: %v", e.JobID, e.Operation, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// RepositoryError represents an error from the persistence layer.
type RepositoryError struct {
	Operation string
	Err       error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository: operation %s: %v", e.Operation, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// RunnerError represents an error from a runner-specific backend.
type RunnerError struct {
	Runner    string
	JobID     string
	Operation string
	Err       error
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("runner %s: job %s: operation %s: %v", e.Runner, e.JobID, e.Operation, e.Err)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}

// RegistryError represents an error from the spec-registry service.
type RegistryError struct {
	Operation string
	Err       error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry: operation %s: %v", e.Operation, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

// BusError represents an error from the message bus.
type BusError struct {
	Channel   string
	Operation string
	Err       error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s: operation %s: %v", e.Channel, e.Operation, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// ConfigError represents an error related to configuration
type ConfigError struct {
	Component string
	Field     string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config %s.%s: %v", e.Component, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Error wrapping constructors
func WrapJobError(jobID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &JobError{JobID: jobID, Operation: operation, Err: err}
}

func WrapRepositoryError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &RepositoryError{Operation: operation, Err: err}
}

func WrapRunnerError(runner, jobID, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &RunnerError{Runner: runner, JobID: jobID, Operation: operation, Err: err}
}

func WrapRegistryError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &RegistryError{Operation: operation, Err: err}
}

func WrapBusError(channel, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &BusError{Channel: channel, Operation: operation, Err: err}
}

func WrapConfigError(component, field string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Component: component, Field: field, Err: err}
}

// Error classification functions
func IsJobError(err error) bool {
	var je *JobError
	return errors.As(err, &je)
}

func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}

func IsRunnerError(err error) bool {
	var re *RunnerError
	return errors.As(err, &re)
}

func IsRegistryError(err error) bool {
	var re *RegistryError
	return errors.As(err, &re)
}

func IsBusError(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Specific error type checks
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrJobTimeout)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrJobNotFound) || errors.Is(err, ErrFeatureSetNotFound)
}

func IsPermissionError(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// Error extraction helpers
func GetJobID(err error) (string, bool) {
	var je *JobError
	if errors.As(err, &je) {
		return je.JobID, true
	}
	var re *RunnerError
	if errors.As(err, &re) {
		return re.JobID, true
	}
	return "", false
}

func GetRunner(err error) (string, bool) {
	var re *RunnerError
	if errors.As(err, &re) {
		return re.Runner, true
	}
	return "", false
}

// Convenience functions for common error patterns
func NewJobNotFoundError(jobID string) error {
	return WrapJobError(jobID, "lookup", ErrJobNotFound)
}

func NewFeatureSetNotFoundError(reference string) error {
	return WrapRepositoryError("find feature set "+reference, ErrFeatureSetNotFound)
}

func NewConfigError(component, field string, err error) error {
	return WrapConfigError(component, field, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
}

// Context-aware error handling
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// JoinErrors combines multiple errors into a single error, dropping nils. It
// returns nil when every input is nil and the lone error unchanged when only
// one is non-nil. The kafka bus uses it to report writer and reader close
// failures together.
func JoinErrors(errs ...error) error {
	var validErrs []error
	for _, err := range errs {
		if err != nil {
			validErrs = append(validErrs, err)
		}
	}

	if len(validErrs) == 0 {
		return nil
	}
	if len(validErrs) == 1 {
		return validErrs[0]
	}

	return &multiError{errors: validErrs}
}

// multiError represents multiple errors
type multiError struct {
	errors []error
}

func (e *multiError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}

	msg := e.errors[0].Error()
	for _, err := range e.errors[1:] {
		msg += "; " + err.Error()
	}
	return msg
}

func (e *multiError) Unwrap() []error {
	return e.errors
}

// Is implements error comparison for multiError
func (e *multiError) Is(target error) bool {
	for _, err := range e.errors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// As implements error conversion for multiError
func (e *multiError) As(target interface{}) bool {
	for _, err := range e.errors {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
