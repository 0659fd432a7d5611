package errors

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyErrorRepository(t *testing.T) {
	err := WrapRepositoryError("listFeatureSets", errors.New("timeout"))
	classified := ClassifyError(err)

	if classified.Category != CategoryTransientExternal {
		t.Errorf("Category = %v, want %v", classified.Category, CategoryTransientExternal)
	}
	if !classified.Retryable {
		t.Errorf("expected repository errors to be retryable")
	}
}

func TestClassifyErrorRunner(t *testing.T) {
	err := WrapRunnerError("STREAM_ENGINE", "job-1", "startJob", errors.New("rejected"))
	classified := ClassifyError(err)

	if classified.Category != CategoryRunnerExecution {
		t.Errorf("Category = %v, want %v", classified.Category, CategoryRunnerExecution)
	}
}

func TestClassifyErrorMalformedAck(t *testing.T) {
	classified := ClassifyError(ErrAckMalformed)

	if classified.Category != CategoryProtocolMalformed {
		t.Errorf("Category = %v, want %v", classified.Category, CategoryProtocolMalformed)
	}
	if classified.Retryable {
		t.Errorf("expected malformed protocol errors to not be retried")
	}
}

func TestClassifyErrorContextDeadline(t *testing.T) {
	classified := ClassifyError(context.DeadlineExceeded)

	if classified.Category != CategoryTimeout {
		t.Errorf("Category = %v, want %v", classified.Category, CategoryTimeout)
	}
	if !classified.Retryable {
		t.Errorf("expected deadline-exceeded errors to be retryable")
	}
}

func TestClassifyErrorAlreadyClassifiedIsPreserved(t *testing.T) {
	original := NewInvariantViolation(errors.New("two running jobs for same key"))
	classified := ClassifyError(original)

	if classified != original {
		t.Errorf("expected already-classified error to be returned unchanged")
	}
	if classified.Category != CategoryInvariantViolation {
		t.Errorf("Category = %v, want %v", classified.Category, CategoryInvariantViolation)
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(WrapBusError("acks", "consume", errors.New("broker down"))) {
		t.Errorf("expected bus errors to be retryable")
	}
	if ShouldRetry(ErrAckMalformed) {
		t.Errorf("expected malformed ack to not be retryable")
	}
}

func TestGetCategoryUnknownForPlainError(t *testing.T) {
	if got := GetCategory(errors.New("mystery")); got != CategoryUnknown {
		t.Errorf("GetCategory() = %v, want %v", got, CategoryUnknown)
	}
}

func TestFormatErrorForLoggingIncludesJobID(t *testing.T) {
	err := WrapRunnerError("TEST", "job-7", "abortJob", errors.New("unreachable"))
	fields := FormatErrorForLogging(err)

	if fields["job_id"] != "job-7" {
		t.Errorf("expected job_id field, got %v", fields)
	}
	if fields["category"] != string(CategoryRunnerExecution) {
		t.Errorf("expected category field, got %v", fields)
	}
}

type recordingLogger struct {
	msg  string
	args []interface{}
}

func (r *recordingLogger) Error(msg string, args ...interface{}) {
	r.msg = msg
	r.args = args
}

func TestLogErrorNoopOnNil(t *testing.T) {
	rl := &recordingLogger{}
	LogError(rl, nil, "should not log")

	if rl.msg != "" {
		t.Errorf("expected no log call for nil error, got %q", rl.msg)
	}
}

func TestLogErrorRecordsClassification(t *testing.T) {
	rl := &recordingLogger{}
	LogError(rl, WrapRepositoryError("poll", errors.New("down")), "poll failed")

	if rl.msg != "poll failed" {
		t.Errorf("msg = %q, want %q", rl.msg, "poll failed")
	}
	if len(rl.args) == 0 {
		t.Errorf("expected classification fields to be passed as args")
	}
}
